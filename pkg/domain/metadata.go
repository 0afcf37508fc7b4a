package domain

import (
	"fmt"
	"math"
	"sort"
)

// Metadata bounds.
const (
	MaxMetadataKeys   = 32
	MaxMetadataKeyLen = 64
	MaxMetadataStrLen = 1024
)

// FieldKind enumerates the scalar kinds allowed in Metadata.
type FieldKind string

// Supported metadata field kinds.
const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
)

// FieldSpec declares a single metadata field.
type FieldSpec struct {
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// MetadataSchema declares the fields an RDO accepts in offer AdditionalInfo.
type MetadataSchema map[string]FieldSpec

// Metadata is a bounded scalar key-value map. Values are string, float64 or bool.
type Metadata map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Number returns the numeric value stored under key.
func (m Metadata) Number(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := asNumber(v)
	return f, ok
}

// Normalize coerces JSON-decoded numeric variants to float64 and checks bounds.
func (m Metadata) Normalize() (Metadata, error) {
	if len(m) > MaxMetadataKeys {
		return nil, ValidationError{Field: "metadata", Message: fmt.Sprintf("at most %d keys allowed, got %d", MaxMetadataKeys, len(m))}
	}
	out := make(Metadata, len(m))
	for _, key := range m.keys() {
		if key == "" || len(key) > MaxMetadataKeyLen {
			return nil, ValidationError{Field: "metadata", Message: fmt.Sprintf("invalid key %q", key)}
		}
		switch v := m[key].(type) {
		case string:
			if len(v) > MaxMetadataStrLen {
				return nil, ValidationError{Field: "metadata." + key, Message: "string value too long"}
			}
			out[key] = v
		case bool:
			out[key] = v
		default:
			f, ok := asNumber(v)
			if !ok {
				return nil, ValidationError{Field: "metadata." + key, Message: fmt.Sprintf("unsupported value type %T", v)}
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, ValidationError{Field: "metadata." + key, Message: "number must be finite"}
			}
			out[key] = f
		}
	}
	return out, nil
}

// Validate checks m against the declared schema. Undeclared keys are rejected.
func (s MetadataSchema) Validate(m Metadata) error {
	for _, key := range m.keys() {
		spec, ok := s[key]
		if !ok {
			return ValidationError{Field: "metadata." + key, Message: "field not declared"}
		}
		if !spec.Kind.matches(m[key]) {
			return ValidationError{Field: "metadata." + key, Message: fmt.Sprintf("expected %s", spec.Kind)}
		}
	}
	for _, key := range s.keys() {
		if !s[key].Required {
			continue
		}
		if _, ok := m[key]; !ok {
			return ValidationError{Field: "metadata." + key, Message: "required field missing"}
		}
	}
	return nil
}

// Check validates the schema declaration itself.
func (s MetadataSchema) Check() error {
	if len(s) > MaxMetadataKeys {
		return ValidationError{Field: "metadata_schema", Message: fmt.Sprintf("at most %d fields allowed", MaxMetadataKeys)}
	}
	for key, spec := range s {
		if key == "" || len(key) > MaxMetadataKeyLen {
			return ValidationError{Field: "metadata_schema", Message: fmt.Sprintf("invalid field name %q", key)}
		}
		switch spec.Kind {
		case FieldString, FieldNumber, FieldBool:
		default:
			return ValidationError{Field: "metadata_schema." + key, Message: fmt.Sprintf("unknown kind %q", spec.Kind)}
		}
	}
	return nil
}

func (s MetadataSchema) keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m Metadata) keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (k FieldKind) matches(v any) bool {
	switch k {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldNumber:
		_, ok := asNumber(v)
		return ok
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
