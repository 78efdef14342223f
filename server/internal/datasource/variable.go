package datasource

import (
	"context"
	"encoding/json"
)

// VariableRequest is the body of a variable request. Payload.Target carries a
// second, string-encoded JSON document (see VariableTarget).
type VariableRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// VariablePayload wraps the encoded variable target.
type VariablePayload struct {
	Target json.RawMessage `json:"target"`
}

// VariableTarget is the decoded content of VariablePayload.Target.
type VariableTarget struct {
	Scope    string          `json:"scope"`
	Variable string          `json:"variable"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// VariableOption is one selectable value on the wire.
type VariableOption struct {
	Text  string `json:"__text"`
	Value any    `json:"__value"`
}

// Variable resolves the variable named by req and returns its options in the
// order the callback produced them.
func (e *Engine) Variable(ctx context.Context, req VariableRequest) ([]VariableOption, error) {
	target, err := decodeVariableTarget(req)
	if err != nil {
		return nil, err
	}

	fn, err := e.registry.Variable(target.Scope, target.Variable)
	if err != nil {
		return nil, err
	}

	opts, err := fn(ctx, decodeObject(target.Data))
	if err != nil {
		return nil, err
	}

	out := make([]VariableOption, 0, opts.Len())
	for _, o := range opts.All() {
		out = append(out, VariableOption{Text: o.Label, Value: o.Value})
	}
	return out, nil
}

func decodeVariableTarget(req VariableRequest) (VariableTarget, error) {
	var target VariableTarget
	if isAbsent(req.Payload) {
		return target, &MissingFieldError{Field: "payload"}
	}
	var payload VariablePayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return target, &InvalidFieldError{Field: "payload", Value: string(req.Payload)}
	}
	if isAbsent(payload.Target) {
		return target, &MissingFieldError{Field: "payload.target"}
	}

	var encoded string
	if err := json.Unmarshal(payload.Target, &encoded); err != nil {
		return target, &InvalidFieldError{Field: "payload.target", Value: string(payload.Target)}
	}
	if err := json.Unmarshal([]byte(encoded), &target); err != nil {
		return target, &InvalidFieldError{Field: "payload.target", Value: encoded}
	}

	if target.Scope == "" {
		return target, &MissingFieldError{Field: "payload.target.scope"}
	}
	if target.Variable == "" {
		return target, &MissingFieldError{Field: "payload.target.variable"}
	}
	return target, nil
}
