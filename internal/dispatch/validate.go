package dispatch

import (
	"fmt"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/kernelerr"
)

// ValidateIntentShape checks an Intent carries the required fields for its
// Kind.
func ValidateIntentShape(in Intent) error {
	if in.PrincipalID == "" {
		return kernelerr.InvalidArgument("principal_id", "required")
	}

	switch in.Kind {
	case KindRead, KindDelete, KindUpdateMetadata:
		if in.ArtifactID == "" {
			return kernelerr.InvalidArgument("artifact_id", "required")
		}
	case KindWrite:
		if in.Interface == nil {
			return kernelerr.InvalidArgument("interface", "required")
		}
	case KindInvoke:
		if in.ArtifactID == "" {
			return kernelerr.InvalidArgument("artifact_id", "required")
		}
	case KindTransfer:
		if in.To == "" {
			return kernelerr.InvalidArgument("to", "required")
		}
		if in.Resource == "" {
			return kernelerr.InvalidArgument("resource", "required")
		}
		if in.Amount < 0 {
			return kernelerr.InvalidArgument("amount", "must be non-negative")
		}
	case KindQuery:
		if in.QueryType == "" {
			return kernelerr.InvalidArgument("query_type", "required")
		}
	case KindNoop:
		// no required fields beyond principal_id
	case KindModifySystemPrompt:
		if in.PromptOp == "" {
			return kernelerr.InvalidArgument("operation", "required")
		}
	default:
		return kernelerr.InvalidArgument("kind", fmt.Sprintf("unknown intent kind %q", in.Kind))
	}
	return nil
}

// ArgumentValidator checks invoke args against a method's inputSchema,
// honoring the executor.interface_validation mode (none|warn|strict).
type ArgumentValidator struct {
	mode config.InterfaceValidationMode
	warn func(msg string)
}

// NewArgumentValidator builds a validator running in mode, reporting
// warnings (in "warn" mode) via warn, which may be nil.
func NewArgumentValidator(mode config.InterfaceValidationMode, warn func(msg string)) *ArgumentValidator {
	return &ArgumentValidator{mode: mode, warn: warn}
}

// Validate checks args against schema's declared "required" field list and
// (where present) simple "type" hints per field — a minimal, tolerant
// JSON-schema-like check rather than a full validator, matching a
// deliberately loose "inputSchema" shape.
func (v *ArgumentValidator) Validate(schema map[string]any, args map[string]any) error {
	if v.mode == config.ValidationNone || schema == nil {
		return nil
	}

	var problems []string

	if req, ok := schema["required"].([]string); ok {
		for _, field := range req {
			if _, present := args[field]; !present {
				problems = append(problems, fmt.Sprintf("missing required field %q", field))
			}
		}
	} else if reqAny, ok := schema["required"].([]any); ok {
		for _, f := range reqAny {
			field, _ := f.(string)
			if field == "" {
				continue
			}
			if _, present := args[field]; !present {
				problems = append(problems, fmt.Sprintf("missing required field %q", field))
			}
		}
	}

	if properties, ok := schema["properties"].(map[string]any); ok {
		for field, rawSpec := range properties {
			fieldSpec, ok := rawSpec.(map[string]any)
			if !ok {
				continue
			}
			wantType, _ := fieldSpec["type"].(string)
			if wantType == "" {
				continue
			}
			val, present := args[field]
			if !present {
				continue
			}
			if !matchesType(val, wantType) {
				problems = append(problems, fmt.Sprintf("field %q expected type %q", field, wantType))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}

	switch v.mode {
	case config.ValidationWarn:
		if v.warn != nil {
			for _, p := range problems {
				v.warn(p)
			}
		}
		return nil
	default: // strict
		return kernelerr.InvalidType("args", problems[0])
	}
}

func matchesType(val any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := val.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
