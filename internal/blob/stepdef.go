package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Definition is the document stored at key "step/<id>" by the (external)
// pipeline DSL parser. The hub only reads it — parents/children drive DAG
// propagation; priority/scope/velocity/tag are the parser's initial
// values for a step's metadata row at upload time.
type Definition struct {
	ID       string   `json:"id"`
	Priority int      `json:"priority"`
	Scope    string   `json:"scope"`
	Velocity *float64 `json:"velocity,omitempty"`
	Tag      string   `json:"tag"`
	Parents  []string `json:"parents"`
	Children []string `json:"children"`
	Language string   `json:"language,omitempty"`
	Code     string   `json:"code,omitempty"`
}

func StepDefinitionKey(id string) string { return id }

// GetStepDefinition fetches and decodes the Definition at step/<id>.
func GetStepDefinition(ctx context.Context, store Store, id string) (*Definition, error) {
	r, err := store.Get(ctx, CategoryStepDef, StepDefinitionKey(id))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var def Definition
	if err := json.NewDecoder(r).Decode(&def); err != nil {
		return nil, fmt.Errorf("decode step definition %q: %w", id, err)
	}
	return &def, nil
}

// PutStepDefinition writes a Definition document to step/<id>.
func PutStepDefinition(ctx context.Context, store Store, def *Definition) error {
	b, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode step definition %q: %w", def.ID, err)
	}
	return store.Put(ctx, CategoryStepDef, StepDefinitionKey(def.ID), bytes.NewReader(b))
}
