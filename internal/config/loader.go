package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed modelweb.v1.schema.json
var defaultSchema []byte

const defaultSchemaURL = "modelweb.v1.schema.json"

// DefaultSchema returns the built-in config schema.
func DefaultSchema() []byte {
	return bytes.Clone(defaultSchema)
}

// LoadAndValidate loads and validates the configuration. An empty schemaPath
// selects the built-in schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates YAML data against the schema and decodes it.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: config validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	for id, conv := range config.Conversions {
		if _, err := conv.Quantization(); err != nil {
			return nil, fmt.Errorf("config: conversion %s: %w", id, err)
		}
		if _, err := conv.GetSource(); err != nil {
			return nil, fmt.Errorf("config: conversion %s: %w", id, err)
		}
	}

	return &config, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(defaultSchemaURL, bytes.NewReader(defaultSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile(defaultSchemaURL)
}
