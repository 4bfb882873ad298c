// Package singer writes the newline-delimited SCHEMA, RECORD and STATE messages
// a tap emits on stdout.
package singer

import (
	"time"

	"github.com/invopop/jsonschema"
)

const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

type SchemaMessage struct {
	Type          string      `json:"type"`
	Stream        string      `json:"stream"`
	Schema        interface{} `json:"schema"`
	KeyProperties []string    `json:"key_properties"`
}

type RecordMessage struct {
	Type          string      `json:"type"`
	Stream        string      `json:"stream"`
	Record        interface{} `json:"record"`
	TimeExtracted *time.Time  `json:"time_extracted,omitempty"`
}

type StateMessage struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Schema reflects a JSON schema from a record struct, inlining every definition.
func Schema(record interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	return reflector.Reflect(record)
}

// Validator is implemented by records that can check themselves before emission.
type Validator interface {
	Validate() error
}
