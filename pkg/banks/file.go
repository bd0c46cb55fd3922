package banks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/schema"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of an extra bank table.
type File struct {
	Banks []Bank `json:"banks" yaml:"banks" toml:"banks" jsonschema:"required"`
}

// GenerateSchema returns the JSON Schema of a bank table file.
func GenerateSchema() ([]byte, error) {
	s := config.NewReflector().Reflect(&File{})
	s.Title = "remit bank table"
	return json.MarshalIndent(s, "", "  ")
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

func fileValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		validator, validatorErr = schema.Compile("banks.json", data)
	})
	return validator, validatorErr
}

// LoadFile reads a YAML or TOML bank table, validates it and decodes it.
func LoadFile(path string) ([]Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank table: %w", err)
	}
	return Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Parse decodes a bank table in the given format ("toml", otherwise YAML).
func Parse(data []byte, format string) ([]Bank, error) {
	doc := map[string]interface{}{}
	var err error
	if format == "toml" {
		err = toml.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse bank table: %w", err)
	}

	v, err := fileValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid bank table: %w", err)
	}

	var file File
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &file,
		TagName: "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode bank table: %w", err)
	}
	return file.Banks, nil
}
