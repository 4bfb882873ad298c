package singer

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema turns a declared stream schema into a validator. schema can be anything
// that marshals to a JSON schema document.
func compileSchema(stream string, schema interface{}) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}

	loc := "mem://singer/" + stream + ".json"
	c := jsonschema.NewCompiler()
	if err = c.AddResource(loc, doc); err != nil {
		return nil, errors.Wrap(err, "add schema")
	}
	compiled, err := c.Compile(loc)
	return compiled, errors.Wrap(err, "compile schema")
}

// validateRecord checks the JSON form of record, as it will be emitted, against schema.
func validateRecord(schema *jsonschema.Schema, record interface{}) error {
	b, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "decode record")
	}
	return schema.Validate(inst)
}
