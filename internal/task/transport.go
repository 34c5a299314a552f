package task

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// transportEnvelope is the wire shape of a task in transport mode: a
// type discriminator, version, and the raw JSON of each declared
// field, preserved losslessly (unlike hash mode, nested tasks encode
// as their own full envelope rather than truncating to {"id": ...}).
type transportEnvelope struct {
	Namespace string                     `json:"__namespace"`
	Name      string                     `json:"__name"`
	Version   string                     `json:"version"`
	Fields    map[string]json.RawMessage `json:"fields"`
}

func transportJSONable(t Task) (map[string]any, error) {
	typeID := t.TypeID()
	fields := make(map[string]any, len(t.Fields()))
	for _, f := range t.Fields() {
		enc, err := f.Value.encode(modeTransport)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields[f.Name] = enc
	}
	return map[string]any{
		"__namespace": typeID.Namespace,
		"__name":      typeID.Name,
		"version":     t.Version(),
		"fields":      fields,
	}, nil
}

// MarshalTransport renders t in the full, round-trippable transport
// mode: every field present, nested tasks as full nested envelopes.
func MarshalTransport(t Task) ([]byte, error) {
	jsonable, err := transportJSONable(t)
	if err != nil {
		return nil, fmt.Errorf("stardag: encoding transport payload for %s: %w", t.TypeID(), err)
	}
	return json.Marshal(jsonable)
}

// UnmarshalTransport decodes a transport-mode payload back into a
// concrete Task, resolving its TypeID through the process-wide
// registry. Returns an *UnknownTypeError if no Register call has bound
// that TypeID.
func UnmarshalTransport(data []byte) (Task, error) {
	var env transportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("stardag: decoding transport payload: %w", err)
	}
	typeID := TypeID{Namespace: env.Namespace, Name: env.Name}
	ctor, err := resolve(typeID)
	if err != nil {
		return nil, err
	}
	t, err := ctor(env.Version, env.Fields)
	if err != nil {
		return nil, fmt.Errorf("stardag: constructing task %s: %w", typeID, err)
	}
	return t, nil
}

// The Decode* helpers below are what a Constructor typically uses to
// pull its fields back out of the raw JSON map UnmarshalTransport
// hands it.

// DecodeField unmarshals fields[name] into out, or returns a
// *MissingFieldError tagged with typeID if name is absent.
func DecodeField(typeID TypeID, fields map[string]json.RawMessage, name string, out any) error {
	raw, ok := fields[name]
	if !ok {
		return &MissingFieldError{TypeID: typeID, Field: name}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("stardag: field %q: %w", name, err)
	}
	return nil
}

// DecodeOptionalField is DecodeField but leaves out untouched instead
// of erroring when name is absent, for fields added after a task type
// first shipped (paired with a Field.CompatDefault on the encode side).
func DecodeOptionalField(fields map[string]json.RawMessage, name string, out any) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("stardag: field %q: %w", name, err)
	}
	return nil
}

// DecodeBytesField decodes a base64-encoded byte-slice field produced
// by Bytes.
func DecodeBytesField(typeID TypeID, fields map[string]json.RawMessage, name string) ([]byte, error) {
	var s string
	if err := DecodeField(typeID, fields, name, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// DecodeTaskField decodes a nested-task field (produced by TaskValue)
// back into a Task.
func DecodeTaskField(typeID TypeID, fields map[string]json.RawMessage, name string) (Task, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, &MissingFieldError{TypeID: typeID, Field: name}
	}
	t, err := UnmarshalTransport(raw)
	if err != nil {
		return nil, fmt.Errorf("stardag: field %q: %w", name, err)
	}
	return t, nil
}

// DecodeTaskListField decodes a field holding a JSON array of nested-
// task transport envelopes (produced by List(TaskValue(...), ...)).
func DecodeTaskListField(typeID TypeID, fields map[string]json.RawMessage, name string) ([]Task, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, &MissingFieldError{TypeID: typeID, Field: name}
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("stardag: field %q: %w", name, err)
	}
	out := make([]Task, len(rawItems))
	for i, item := range rawItems {
		t, err := UnmarshalTransport(item)
		if err != nil {
			return nil, fmt.Errorf("stardag: field %q[%d]: %w", name, i, err)
		}
		out[i] = t
	}
	return out, nil
}
