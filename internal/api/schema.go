package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/strategy.json
var strategySchemaJSON []byte

var strategySchema = mustCompileSchema("strategy.json", strategySchemaJSON)

func mustCompileSchema(name string, raw []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("invalid embedded schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// DecodeStrategy validates raw against the strategy schema and decodes it.
func DecodeStrategy(raw []byte) (*domain.Strategy, error) {
	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := strategySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("strategy does not match schema: %w", err)
	}

	var s domain.Strategy
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
