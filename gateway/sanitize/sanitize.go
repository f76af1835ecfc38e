// Package sanitize prepares a canonical Request for dispatch: it strips
// knobs a target model does not support and rewrites legacy structured-
// output requests into system-prompt instructions. It never mutates the
// caller's Request — every entry point returns a new value.
package sanitize

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taipm/llmgateway/gateway"
)

// Capabilities is the subset of the registry the sanitizer needs, kept
// narrow so it can be unit tested without a full registry.
type Capabilities interface {
	SupportsTemperature(modelID string) bool
}

// Prepare returns a sanitized copy of req, ready for a provider adapter.
// It never mutates req.
func Prepare(req gateway.Request, caps Capabilities) (gateway.Request, error) {
	out := req
	out.Messages = append([]gateway.Message{}, req.Messages...)

	if out.Temperature != nil && !caps.SupportsTemperature(out.Model) {
		out.Temperature = nil
	}

	if out.ResponseFormat != nil && out.ResponseFormat.Empty() {
		out.ResponseFormat = nil
	}

	if out.ResponseFormat != nil && isLegacyFields(out.ResponseFormat) {
		appendix := buildFieldsAppendix(out.ResponseFormat.Fields)
		if appendix != "" {
			if out.SystemPrompt != "" {
				out.SystemPrompt = out.SystemPrompt + "\n\n" + appendix
			} else {
				out.SystemPrompt = appendix
			}
		}
		// The appendix fully describes the shape; adapters must not also
		// attach a native schema for a legacy fields[] request.
		out.ResponseFormat = &gateway.ResponseFormat{}
	} else if out.ResponseFormat != nil && len(out.ResponseFormat.Schema) > 0 {
		if err := validateSchema(out.ResponseFormat.Schema); err != nil {
			return gateway.Request{}, fmt.Errorf("sanitize: invalid response schema: %w", err)
		}
	}

	return out, nil
}

// isLegacyFields reports whether a ResponseFormat is the legacy {fields:[...]}
// shape rather than a native JSON Schema document (one carrying "schema" or
// a top-level type:object/properties pair).
func isLegacyFields(rf *gateway.ResponseFormat) bool {
	if len(rf.Fields) == 0 {
		return false
	}
	if len(rf.Schema) > 0 {
		if _, hasSchema := rf.Schema["schema"]; hasSchema {
			return false
		}
		if t, _ := rf.Schema["type"].(string); t == "object" {
			if _, hasProps := rf.Schema["properties"]; hasProps {
				return false
			}
		}
	}
	return true
}

// buildFieldsAppendix synthesizes a natural-language instruction block
// describing the required JSON shape from a legacy fields[] spec. Fields
// missing a name or type are silently skipped (schema violations are never
// fatal — spec §7).
func buildFieldsAppendix(fields []gateway.FieldSpec) string {
	var b strings.Builder
	var lines []string
	for _, f := range fields {
		if line := describeField(f, 0); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	b.WriteString("Respond with a single JSON object containing exactly these fields:\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeField(f gateway.FieldSpec, depth int) string {
	if f.Name == "" || f.Type == "" {
		return ""
	}
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s- %q (%s)", indent, f.Name, f.Type)
	if f.Description != "" {
		line += ": " + f.Description
	}
	if len(f.Properties) > 0 {
		var nested []string
		for _, nf := range f.Properties {
			if nl := describeField(nf, depth+1); nl != "" {
				nested = append(nested, nl)
			}
		}
		if len(nested) > 0 {
			line += "\n" + strings.Join(nested, "\n")
		}
	}
	return line
}

// validateSchema fails fast on a native JSON Schema that the jsonschema
// compiler rejects, rather than sending a malformed schema to a provider.
func validateSchema(schema map[string]interface{}) error {
	body := schema
	if nested, ok := schema["schema"].(map[string]interface{}); ok {
		body = nested
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline.json", body); err != nil {
		return err
	}
	_, err := compiler.Compile("inline.json")
	return err
}
