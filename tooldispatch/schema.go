package tooldispatch

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateArgs compiles the tool's parameter schema and validates args
// against it, mirroring the registry's own payload-validation helper:
// unmarshal both documents to `any`, add the schema as an in-memory
// resource, compile, validate.
func validateArgs(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	b, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(b, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("call.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("call.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var argsDoc any = map[string]any(args)
	if err := compiled.Validate(argsDoc); err != nil {
		return err
	}
	return nil
}
