package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/invopop/jsonschema"
)

const outputDir = "schema/definitions"

func main() {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	// The logging section is owned by the logging package, so it is reflected
	// separately and spliced into the remit.yml schema.
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}
	loggingSchema := r.Reflect(&logging.Config{})
	loggingSchema.Version = ""
	loggingSchema.Title = "remit logging configuration"
	loggingSchema.Description = "Schema for the 'logging' section of remit.yml."
	loggingSchema.Required = nil

	base := config.ReflectSchema()
	base.Properties.Set("logging", loggingSchema)

	write("remit.schema.json", base)
	write("logging.schema.json", loggingSchema)

	banksBytes, err := banks.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating bank table schema: %v", err)
	}
	writeBytes("banks.schema.json", banksBytes)
}

func write(name string, s *jsonschema.Schema) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling %s: %v", name, err)
	}
	writeBytes(name, data)
}

func writeBytes(name string, data []byte) {
	outputPath := filepath.Join(outputDir, name)
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Successfully generated %s", outputPath)
}
