package ideator

import "time"

type LLMConfig struct {
	Model            string  `yaml:"model" json:"model"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" json:"maxTokens"`
	TopP             float64 `yaml:"top_p" json:"topP"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequencyPenalty"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presencePenalty"`
}

type IdeationConfig struct {
	RequiredCount        int     `yaml:"required_count" json:"requiredCount"`
	MaxTitleLength       int     `yaml:"max_title_length" json:"maxTitleLength"`
	MinDescriptionLength int     `yaml:"min_description_length" json:"minDescriptionLength"`
	MaxDescriptionLength int     `yaml:"max_description_length" json:"maxDescriptionLength"`
	TargetRevenue        float64 `yaml:"target_revenue" json:"targetRevenue"`
}

type ValidationConfig struct {
	EnableValidation bool `yaml:"enable_validation" json:"enableValidation"`
	MinQualityScore  int  `yaml:"min_quality_score" json:"minQualityScore"`
	MaxRetries       int  `yaml:"max_retries" json:"maxRetries"`
}

// Config is read once at the start of every invocation.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" json:"llmConfig"`
	Ideation   IdeationConfig   `yaml:"ideation" json:"ideationConfig"`
	Validation ValidationConfig `yaml:"validation" json:"validationConfig"`

	CallTimeout time.Duration `yaml:"-" json:"-"`
	BaseDelay   time.Duration `yaml:"-" json:"-"`
	MaxDelay    time.Duration `yaml:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Temperature: 0.7,
			MaxTokens:   4096,
			TopP:        0.9,
		},
		Ideation: IdeationConfig{
			RequiredCount:        5,
			MaxTitleLength:       30,
			MinDescriptionLength: 10,
			MaxDescriptionLength: 500,
			TargetRevenue:        1_000_000_000,
		},
		Validation: ValidationConfig{
			EnableValidation: true,
			MinQualityScore:  70,
			MaxRetries:       3,
		},
		CallTimeout: 60 * time.Second,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

func (c Config) RetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = c.Validation.MaxRetries
	if c.BaseDelay > 0 {
		p.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	p.CallTimeout = c.CallTimeout
	return p
}

// ConfigPatch is a partial Config. Nil fields keep the current value.
type ConfigPatch struct {
	LLM        *LLMPatch        `yaml:"llm,omitempty" json:"llmConfig,omitempty"`
	Ideation   *IdeationPatch   `yaml:"ideation,omitempty" json:"ideationConfig,omitempty"`
	Validation *ValidationPatch `yaml:"validation,omitempty" json:"validationConfig,omitempty"`
}

type LLMPatch struct {
	Model            *string  `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature      *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens        *int     `yaml:"max_tokens,omitempty" json:"maxTokens,omitempty"`
	TopP             *float64 `yaml:"top_p,omitempty" json:"topP,omitempty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty" json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `yaml:"presence_penalty,omitempty" json:"presencePenalty,omitempty"`
}

type IdeationPatch struct {
	RequiredCount        *int     `yaml:"required_count,omitempty" json:"requiredCount,omitempty"`
	MaxTitleLength       *int     `yaml:"max_title_length,omitempty" json:"maxTitleLength,omitempty"`
	MinDescriptionLength *int     `yaml:"min_description_length,omitempty" json:"minDescriptionLength,omitempty"`
	MaxDescriptionLength *int     `yaml:"max_description_length,omitempty" json:"maxDescriptionLength,omitempty"`
	TargetRevenue        *float64 `yaml:"target_revenue,omitempty" json:"targetRevenue,omitempty"`
}

type ValidationPatch struct {
	EnableValidation *bool `yaml:"enable_validation,omitempty" json:"enableValidation,omitempty"`
	MinQualityScore  *int  `yaml:"min_quality_score,omitempty" json:"minQualityScore,omitempty"`
	MaxRetries       *int  `yaml:"max_retries,omitempty" json:"maxRetries,omitempty"`
}

// Merge returns c with every non-nil patch field applied. Each sub-object is
// merged field by field; c itself is not modified.
func (c Config) Merge(p ConfigPatch) Config {
	out := c
	if l := p.LLM; l != nil {
		set(&out.LLM.Model, l.Model)
		set(&out.LLM.Temperature, l.Temperature)
		set(&out.LLM.MaxTokens, l.MaxTokens)
		set(&out.LLM.TopP, l.TopP)
		set(&out.LLM.FrequencyPenalty, l.FrequencyPenalty)
		set(&out.LLM.PresencePenalty, l.PresencePenalty)
	}
	if i := p.Ideation; i != nil {
		set(&out.Ideation.RequiredCount, i.RequiredCount)
		set(&out.Ideation.MaxTitleLength, i.MaxTitleLength)
		set(&out.Ideation.MinDescriptionLength, i.MinDescriptionLength)
		set(&out.Ideation.MaxDescriptionLength, i.MaxDescriptionLength)
		set(&out.Ideation.TargetRevenue, i.TargetRevenue)
	}
	if v := p.Validation; v != nil {
		set(&out.Validation.EnableValidation, v.EnableValidation)
		set(&out.Validation.MinQualityScore, v.MinQualityScore)
		set(&out.Validation.MaxRetries, v.MaxRetries)
	}
	return out
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects configurations the pipeline cannot honor.
func (c Config) Validate() error {
	switch {
	case c.Ideation.RequiredCount < 1:
		return NewError(CodeValidationFailed, "ideation.requiredCount must be >= 1")
	case c.Validation.MinQualityScore < 0 || c.Validation.MinQualityScore > 100:
		return NewError(CodeValidationFailed, "validation.minQualityScore must be within 0..100")
	case c.Validation.MaxRetries < 0:
		return NewError(CodeValidationFailed, "validation.maxRetries must be >= 0")
	case c.Ideation.MaxTitleLength < 1:
		return NewError(CodeValidationFailed, "ideation.maxTitleLength must be >= 1")
	case c.Ideation.MinDescriptionLength < 0 || c.Ideation.MaxDescriptionLength < c.Ideation.MinDescriptionLength:
		return NewError(CodeValidationFailed, "ideation description bounds are inconsistent")
	case c.LLM.MaxTokens < 0:
		return NewError(CodeValidationFailed, "llm.maxTokens must be >= 0")
	case c.CallTimeout < 0 || c.BaseDelay < 0 || c.MaxDelay < 0:
		return NewError(CodeValidationFailed, "timeouts and delays must not be negative")
	}
	return nil
}
