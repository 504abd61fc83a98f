package ideator

import "time"

const CapabilityIdeation = "business-ideation"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

type Frequency string

const (
	FrequencyRare       Frequency = "rare"
	FrequencyOccasional Frequency = "occasional"
	FrequencyFrequent   Frequency = "frequent"
	FrequencyDaily      Frequency = "daily"
)

// ResearchOutput is produced by the upstream research stage and never
// mutated here.
type ResearchOutput struct {
	ID                string            `json:"id,omitempty"`
	Facts             []string          `json:"facts"`
	Entities          []Entity          `json:"entities"`
	DetailedAnalysis  DetailedAnalysis  `json:"detailedAnalysis"`
	Metrics           ResearchMetrics   `json:"metrics"`
	ProcessedResearch ProcessedResearch `json:"processedResearch"`
}

type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type DetailedAnalysis struct {
	Opportunities        []string `json:"opportunities"`
	Challenges           []string `json:"challenges"`
	MarketTrends         []string `json:"marketTrends"`
	CompetitiveLandscape string   `json:"competitiveLandscape"`
}

type ResearchMetrics struct {
	MarketSize float64  `json:"marketSize"`
	GrowthRate *float64 `json:"growthRate,omitempty"`
}

type ProcessedResearch struct {
	Summary string `json:"summary"`
}

type MarketOpportunity struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	MarketSize      float64  `json:"marketSize"`
	GrowthRate      float64  `json:"growthRate"`
	UnmetNeeds      []string `json:"unmetNeeds"`
	CompetitiveGaps []string `json:"competitiveGaps"`
}

type CustomerPain struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	Severity         Level     `json:"severity"`
	Frequency        Frequency `json:"frequency"`
	CurrentSolutions []string  `json:"currentSolutions"`
	Limitations      []string  `json:"limitations"`
}

type MarketContext struct {
	Opportunities        []MarketOpportunity `json:"opportunities"`
	Pains                []CustomerPain      `json:"pains"`
	Trends               []string            `json:"trends"`
	CompetitiveLandscape string              `json:"competitiveLandscape"`
	ResearchSummary      string              `json:"researchSummary"`
}

type BusinessIdea struct {
	ID                       string   `json:"id" jsonschema:"description=Unique identifier; may be left empty"`
	Title                    string   `json:"title" jsonschema:"minLength=1,maxLength=30"`
	Description              string   `json:"description" jsonschema:"minLength=10,maxLength=500"`
	TargetCustomers          []string `json:"targetCustomers" jsonschema:"minItems=1"`
	CustomerPains            []string `json:"customerPains" jsonschema:"minItems=1"`
	ValueProposition         string   `json:"valueProposition" jsonschema:"minLength=10"`
	RevenueModel             string   `json:"revenueModel" jsonschema:"minLength=10"`
	EstimatedRevenue         float64  `json:"estimatedRevenue" jsonschema:"minimum=0,description=Expected annual revenue in currency units"`
	ImplementationDifficulty Level    `json:"implementationDifficulty" jsonschema:"enum=low,enum=medium,enum=high"`
	MarketOpportunity        string   `json:"marketOpportunity" jsonschema:"minLength=10"`
}

type ValidationIssue struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type ValidationResult struct {
	IdeaID       string            `json:"ideaId"`
	IsValid      bool              `json:"isValid"`
	Issues       []ValidationIssue `json:"issues"`
	QualityScore int               `json:"qualityScore"`
}

type BatchValidation struct {
	IsValid      bool               `json:"isValid"`
	OverallScore float64            `json:"overallScore"`
	Results      []ValidationResult `json:"results"`
	Issues       []ValidationIssue  `json:"issues,omitempty"`
}

type OutputMetadata struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	ModelUsed        string    `json:"modelUsed"`
	TokensUsed       int       `json:"tokensUsed"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	ResearchDataID   string    `json:"researchDataId"`
	AverageRevenue   float64   `json:"averageRevenue"`
	MarketSize       float64   `json:"marketSize"`
}

type QualityMetrics struct {
	StructureCompleteness float64 `json:"structureCompleteness"`
	ContentConsistency    float64 `json:"contentConsistency"`
	MarketClarity         float64 `json:"marketClarity"`
}

type IdeatorOutput struct {
	SessionID      string         `json:"sessionId"`
	Ideas          []BusinessIdea `json:"ideas"`
	Summary        string         `json:"summary"`
	Metadata       OutputMetadata `json:"metadata"`
	QualityMetrics QualityMetrics `json:"qualityMetrics"`
}

// RunStats counts the external work one invocation performed.
type RunStats struct {
	LLMCalls      int             `json:"llmCalls"`
	Retries       int             `json:"retries"`
	Refinements   int             `json:"refinements"`
	Discarded     int             `json:"discarded"`
	Backfills     int             `json:"backfills"`
	BackoffDelays []time.Duration `json:"backoffDelays,omitempty"`
}

type Request struct {
	SessionID      string
	ResearchDataID string
	Research       ResearchOutput
}

// Result is what Generate hands back next to the output, for reporting.
type Result struct {
	Output     IdeatorOutput
	Validation BatchValidation
	Stats      RunStats
	Context    MarketContext
}
