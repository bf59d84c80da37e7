package keyfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "gear-cli/keyfile.schema.json"

//go:embed keyfile.schema.json
var schemaDocument []byte

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaDocument)); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaURL)
})

// validateDocument checks the document shape. Problems inside "encoding" are
// reported as an unsupported encoding, everything else as a malformed file.
func validateDocument(raw []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("keyfile: compile schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKeyfile, err)
	}
	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) && encodingViolation(verr) {
		return fmt.Errorf("%w: %v", ErrUnsupportedEncodingVersion, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedKeyfile, err)
}

func encodingViolation(verr *jsonschema.ValidationError) bool {
	if len(verr.Causes) == 0 {
		return strings.HasPrefix(verr.InstanceLocation, "/encoding")
	}
	for _, cause := range verr.Causes {
		if !encodingViolation(cause) {
			return false
		}
	}
	return true
}
