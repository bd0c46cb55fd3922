package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/grovetools/remit/schema"
	"github.com/invopop/jsonschema"
)

// durationPattern accepts Go duration strings such as "8s" or "1m30s".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// NewReflector returns the reflector used for every remit schema: yaml field
// names, no unknown keys, durations as strings.
func NewReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               "yaml",
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
}

// ReflectSchema builds the remit.yml schema. Extension sections are declared
// as open objects; tools/schema-generator replaces them with their own schemas.
func ReflectSchema() *jsonschema.Schema {
	s := NewReflector().Reflect(&Config{})
	s.Title = "remit configuration"
	s.Description = "Schema for remit.yml"
	s.Properties.Set("logging", &jsonschema.Schema{
		Type:        "object",
		Description: "Logging settings",
	})
	return s
}

// GenerateSchema returns the indented JSON form of ReflectSchema.
func GenerateSchema() ([]byte, error) {
	return json.MarshalIndent(ReflectSchema(), "", "  ")
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// NewSchemaValidator returns the compiled remit.yml validator.
func NewSchemaValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		validator, validatorErr = schema.Compile("remit.json", data)
	})
	return validator, validatorErr
}
