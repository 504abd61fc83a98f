package ideator

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/joelkehle/ideator/internal/llm"
)

// RawBatch is the object the model returns for a batch generation.
type RawBatch struct {
	Ideas   []BusinessIdea `json:"ideas" jsonschema:"minItems=1"`
	Summary string         `json:"summary,omitempty"`
}

// ideaResponse wraps a single generated or refined idea.
type ideaResponse struct {
	Idea BusinessIdea `json:"idea"`
}

// UnmarshalJSON also accepts a bare idea object.
func (r *ideaResponse) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if inner, ok := probe["idea"]; ok {
		return json.Unmarshal(inner, &r.Idea)
	}
	return json.Unmarshal(b, &r.Idea)
}

var (
	schemaOnce    sync.Once
	batchSchema   llm.Schema
	ideaSchema    llm.Schema
	refineSchema  llm.Schema
	schemaInitErr error
)

func reflectSchema(name string, v any) (llm.Schema, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)
	s.Version = ""
	s.Title = name
	raw, err := json.Marshal(s)
	if err != nil {
		return llm.Schema{}, err
	}
	return llm.Schema{Name: name, Definition: raw}, nil
}

func loadSchemas() error {
	schemaOnce.Do(func() {
		if batchSchema, schemaInitErr = reflectSchema("business_idea_batch", &RawBatch{}); schemaInitErr != nil {
			return
		}
		if ideaSchema, schemaInitErr = reflectSchema("business_idea", &ideaResponse{}); schemaInitErr != nil {
			return
		}
		refineSchema, schemaInitErr = reflectSchema("refined_business_idea", &ideaResponse{})
	})
	return schemaInitErr
}

func BatchSchema() (llm.Schema, error) {
	err := loadSchemas()
	return batchSchema, err
}

func SingleIdeaSchema() (llm.Schema, error) {
	err := loadSchemas()
	return ideaSchema, err
}

func RefinementSchema() (llm.Schema, error) {
	err := loadSchemas()
	return refineSchema, err
}
