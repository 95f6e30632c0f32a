package codec

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is the JSON Schema every wire envelope must satisfy
// before field-level decoding begins. Version and kind values are checked
// separately so their failures surface as the dedicated
// ErrUnsupportedVersion and ErrUnknownKind variants rather than a generic
// schema violation.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "geobus packet envelope",
	"type": "object",
	"required": ["version", "kind", "encoding", "timestamp", "source", "geometry"],
	"additionalProperties": false,
	"properties": {
		"version": {
			"type": "string",
			"minLength": 1
		},
		"kind": {
			"type": "string",
			"minLength": 1
		},
		"encoding": {
			"type": "string",
			"enum": ["base64"]
		},
		"timestamp": {
			"type": "string",
			"format": "date-time"
		},
		"source": {
			"type": "string",
			"minLength": 1
		},
		"geometry": {
			"type": "string"
		},
		"metadata": {
			"type": "object",
			"additionalProperties": {
				"type": "string"
			}
		}
	}
}`

var compiledEnvelopeSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		panic(fmt.Sprintf("codec: envelope schema does not compile: %v", err))
	}
	compiledEnvelopeSchema = schema
}

// validateEnvelope runs the compiled schema over raw envelope bytes.
// Returns a joined description of every violation, empty when valid.
func validateEnvelope(data []byte) (string, error) {
	result, err := compiledEnvelopeSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return "", err
	}
	if result.Valid() {
		return "", nil
	}

	descriptions := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return strings.Join(descriptions, "; "), nil
}
