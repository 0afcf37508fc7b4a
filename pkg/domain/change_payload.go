package domain

import "encoding/json"

// ChangePayload is the JSON image of an entity before or after a change. Rules
// and audit recorders decode it into the concrete type they care about.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps raw JSON, cloning the bytes.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = append(json.RawMessage(nil), raw...)
	}
	return payload
}

// PayloadOf marshals value into a payload. Entities are plain structs, so a
// marshal failure is a programming error and yields an undefined payload.
func PayloadOf[T any](value T) ChangePayload {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}
	}
	return NewChangePayload(raw)
}

// Decode unmarshals the payload into T. ok is false when the payload is
// undefined, empty or not a T.
func Decode[T any](p ChangePayload) (T, bool) {
	var out T
	if p.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a copy of the JSON bytes, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// MarshalJSON emits the wrapped document, or null when undefined.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	return p.Raw(), nil
}
