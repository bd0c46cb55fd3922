package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "port": {"type": "integer", "minimum": 1},
    "name": {"type": "string"}
  }
}`

func TestValidate(t *testing.T) {
	v, err := Compile("port.json", []byte(portSchema))
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     interface{}
		wantErr string
	}{
		{name: "valid yaml-style ints", doc: map[string]interface{}{"port": 9222, "name": "chrome"}},
		{name: "valid toml-style int64", doc: map[string]interface{}{"port": int64(9223)}},
		{name: "unknown key", doc: map[string]interface{}{"prot": 1}, wantErr: "additionalProperties"},
		{name: "wrong type", doc: map[string]interface{}{"port": "9222"}, wantErr: "/port"},
		{name: "below minimum", doc: map[string]interface{}{"port": 0}, wantErr: "/port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.doc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileRejectsBrokenSchema(t *testing.T) {
	_, err := Compile("broken.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
