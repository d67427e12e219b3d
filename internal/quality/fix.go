package quality

import (
	"bytes"
	"encoding/json"
)

// FixResult records one change applied by the fixer.
type FixResult struct {
	success      bool
	description  string
	before       any
	after        any
	errorMessage string
	metadata     map[string]any
}

// Fixed records a successful change.
func Fixed(description string, before, after any, metadata map[string]any) FixResult {
	return FixResult{
		success:     true,
		description: description,
		before:      before,
		after:       after,
		metadata:    copyMap(metadata),
	}
}

// NotFixed records a change that was considered but not applied.
func NotFixed(description, reason string, before any, metadata map[string]any) FixResult {
	return FixResult{
		description:  description,
		before:       before,
		after:        before,
		errorMessage: reason,
		metadata:     copyMap(metadata),
	}
}

func (f FixResult) Success() bool { return f.success }
func (f FixResult) Description() string { return f.description }
func (f FixResult) Before() any { return f.before }
func (f FixResult) After() any { return f.after }
func (f FixResult) ErrorMessage() string { return f.errorMessage }
func (f FixResult) Metadata() map[string]any { return copyMap(f.metadata) }

func (f FixResult) String() string {
	if f.success {
		return "✅ " + f.description
	}
	return "❌ " + f.description
}

type fixResultJSON struct {
	Success      bool           `json:"success"`
	Description  string         `json:"description"`
	BeforeValue  any            `json:"before_value"`
	AfterValue   any            `json:"after_value"`
	ErrorMessage *string        `json:"error_message"`
	Metadata     map[string]any `json:"metadata"`
}

func (f FixResult) MarshalJSON() ([]byte, error) {
	out := fixResultJSON{
		Success:     f.success,
		Description: f.description,
		BeforeValue: f.before,
		AfterValue:  f.after,
		Metadata:    f.metadata,
	}
	if f.errorMessage != "" {
		out.ErrorMessage = &f.errorMessage
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return marshal(out)
}

// marshal encodes v like json.Marshal but leaves <, > and & literal; an
// enclosing encoder still escapes them if it is configured to.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CountSuccessful returns how many results in the pass map were applied.
func CountSuccessful(passes map[string][]FixResult) int {
	n := 0
	for _, results := range passes {
		for _, r := range results {
			if r.success {
				n++
			}
		}
	}
	return n
}
