package sandbox

import (
	"strconv"

	"github.com/ternarybob/replbox/internal/script"
	"github.com/ternarybob/replbox/pkg/protocol"
)

// submit implements the SUBMIT callable. It always returns the submit
// signal so evaluation halts deterministically; the outcome lands in the
// session's submit bundle for the server to consume.
func (s *Session) submit(outputs script.Value) error {
	serialized := serializeSubmitValue(outputs)
	s.submitCount++

	signal := &script.Raised{Class: script.ClassSubmitSignal, Message: "SUBMIT"}

	if s.submitCount > 1 {
		s.submitResult = map[string]any{
			"status": "validation_error",
			"errors": []any{map[string]any{
				"error_type": "multiple_submits",
				"count":      s.submitCount,
			}},
			"original_outputs": serialized,
		}
		return signal
	}

	if s.signature == nil {
		s.submitResult = map[string]any{
			"status":           "validation_error",
			"errors":           []any{map[string]any{"error_type": "no_signature_registered"}},
			"original_outputs": serialized,
		}
		return signal
	}

	errs := s.validateSubmitOutputs(serialized)
	if len(errs) > 0 {
		s.submitResult = map[string]any{
			"status":           "validation_error",
			"errors":           errs,
			"original_outputs": serialized,
		}
	} else {
		s.submitResult = map[string]any{
			"status":  "success",
			"outputs": serialized,
		}
	}
	return signal
}

// serializeSubmitValue converts a script value into a JSON-compatible shape:
// scalars pass through, sequences become lists, mappings become
// string-keyed objects, objects with a dump method are invoked, everything
// else falls back to stringification.
func serializeSubmitValue(v script.Value) any {
	native, err := script.ToNative(v)
	if err != nil {
		return script.Str(v)
	}
	return native
}

// nativeTypeName labels a serialized value for validation errors.
func nativeTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, int:
		return "integer"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

// previewValue renders a bounded debug form of a value for error payloads.
func previewValue(v any) string {
	const limit = 100
	text := reprNative(v)
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}

func reprNative(v any) string {
	sv, err := script.FromNative(v)
	if err != nil {
		return script.Repr(script.Str(v))
	}
	return script.Repr(sv)
}

func (s *Session) validateSubmitOutputs(outputs any) []any {
	obj, ok := outputs.(map[string]any)
	if !ok {
		return []any{map[string]any{
			"error_type": "validation_failed",
			"field":      "",
			"reason":     "SUBMIT outputs must be an object",
		}}
	}

	var errs []any
	for i := range s.signature.Fields {
		field := &s.signature.Fields[i]
		fieldType := field.FieldType
		if fieldType == nil {
			fieldType = &protocol.FieldType{Type: "custom"}
		}

		value, present := obj[field.Name]
		if !present {
			if field.IsRequired() {
				errs = append(errs, map[string]any{
					"error_type":    "missing_field",
					"field":         field.Name,
					"expected_type": fieldType,
				})
			}
			continue
		}
		errs = validateFieldValue(field.Name, fieldType, value, errs)
	}
	return errs
}

func validateFieldValue(fieldPath string, fieldType *protocol.FieldType, value any, errs []any) []any {
	switch fieldType.Type {
	case "string":
		if _, ok := value.(string); !ok {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
		}
	case "integer":
		if !isInteger(value) {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
		}
	case "float":
		if !isInteger(value) && !isFloat(value) {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
		}
	case "enum":
		str, ok := value.(string)
		if !ok {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
			return errs
		}
		allowed, err := fieldType.EnumValues()
		if err != nil {
			errs = append(errs, validationFailed(fieldPath, err.Error()))
			return errs
		}
		for _, member := range allowed {
			if member == str {
				return errs
			}
		}
		errs = append(errs, map[string]any{
			"error_type": "enum_invalid",
			"field":      fieldPath,
			"value":      str,
			"allowed":    allowed,
		})
	case "list":
		items, ok := value.([]any)
		if !ok {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
			return errs
		}
		itemType, err := fieldType.ItemType()
		if err != nil {
			errs = append(errs, validationFailed(fieldPath, err.Error()))
			return errs
		}
		for i, item := range items {
			errs = validateFieldValue(indexedPath(fieldPath, i), itemType, item, errs)
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			errs = append(errs, typeMismatch(fieldPath, fieldType, value))
			return errs
		}
		nested, err := fieldType.ObjectFields()
		if err != nil {
			errs = append(errs, validationFailed(fieldPath, err.Error()))
			return errs
		}
		for i := range nested {
			sub := &nested[i]
			subType := sub.FieldType
			if subType == nil {
				subType = &protocol.FieldType{Type: "custom"}
			}
			subPath := fieldPath
			if sub.Name != "" {
				subPath = fieldPath + "." + sub.Name
			}
			subValue, present := obj[sub.Name]
			if !present {
				if sub.IsRequired() {
					errs = append(errs, map[string]any{
						"error_type":    "missing_field",
						"field":         subPath,
						"expected_type": subType,
					})
				}
				continue
			}
			errs = validateFieldValue(subPath, subType, subValue, errs)
		}
	case "custom":
		// Accepted without structural checks.
	default:
		errs = append(errs, validationFailed(fieldPath, "Unknown field type: "+fieldType.Type))
	}
	return errs
}

func typeMismatch(fieldPath string, expected *protocol.FieldType, value any) map[string]any {
	return map[string]any{
		"error_type":    "type_mismatch",
		"field":         fieldPath,
		"expected":      expected,
		"got":           nativeTypeName(value),
		"value_preview": previewValue(value),
	}
}

func validationFailed(fieldPath, reason string) map[string]any {
	return map[string]any{
		"error_type": "validation_failed",
		"field":      fieldPath,
		"reason":     reason,
	}
}

func indexedPath(fieldPath string, i int) string {
	return fieldPath + "[" + strconv.Itoa(i) + "]"
}

// isInteger: booleans are deliberately not integers here.
func isInteger(v any) bool {
	switch v.(type) {
	case int, int64:
		return true
	default:
		return false
	}
}

func isFloat(v any) bool {
	_, ok := v.(float64)
	return ok
}
