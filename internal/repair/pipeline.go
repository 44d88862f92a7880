// Package repair coerces near-JSON model output into valid JSON through an
// ordered list of escalating text transforms.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Characters of context kept on each side of a parse failure
const windowRadius = 40

// ParseError reports text that could not be coerced into JSON. Offset and Window
// refer to the original raw input.
type ParseError struct {
	Offset int64
	Window string
	// Steps that were applied before giving up
	Steps []string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON at offset %d near %q: %v", e.Offset, e.Window, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Pipeline applies its steps in order, re-checking validity after each
type Pipeline struct {
	steps []Step
}

// NewPipeline builds a pipeline from explicit steps
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// DefaultPipeline returns the standard escalation order
func DefaultPipeline() *Pipeline {
	return NewPipeline(
		Step{Name: "strip_control_and_unwrap", Apply: StripControlAndUnwrap},
		Step{Name: "escape_control_in_strings", Apply: EscapeControlInStrings},
		Step{Name: "escape_inner_quotes", Apply: EscapeInnerQuotes},
		Step{Name: "escape_stray_backslashes", Apply: EscapeStrayBackslashes},
		Step{Name: "remove_trailing_commas", Apply: RemoveTrailingCommas},
	)
}

// StepNames lists the steps in order
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Sanitize returns raw unchanged when it is already valid JSON. Otherwise it
// applies steps cumulatively and returns the first valid candidate.
func (p *Pipeline) Sanitize(raw string) (string, error) {
	if gjson.Valid(raw) {
		return raw, nil
	}

	candidate := raw
	applied := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		candidate = step.Apply(candidate)
		applied = append(applied, step.Name)
		if gjson.Valid(candidate) {
			return candidate, nil
		}
	}

	pe := newParseError(raw)
	pe.Steps = applied
	return "", pe
}

// Parse sanitizes raw and unmarshals it into v
func (p *Pipeline) Parse(raw string, v interface{}) error {
	candidate, err := p.Sanitize(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		// Valid JSON of the wrong shape for v
		pe := newParseError(candidate)
		pe.Err = err
		return pe
	}
	return nil
}

var defaultPipeline = DefaultPipeline()

// Sanitize runs the default pipeline
func Sanitize(raw string) (string, error) {
	return defaultPipeline.Sanitize(raw)
}

// Parse runs the default pipeline and unmarshals into v
func Parse(raw string, v interface{}) error {
	return defaultPipeline.Parse(raw, v)
}

// Decode runs the default pipeline and returns a value of type T
func Decode[T any](raw string) (T, error) {
	var out T
	err := defaultPipeline.Parse(raw, &out)
	return out, err
}

func newParseError(text string) *ParseError {
	var v interface{}
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		err = errors.New("unrepairable JSON")
	}

	offset := int64(len(text))
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset = syntaxErr.Offset
	}

	return &ParseError{
		Offset: offset,
		Window: window(text, offset),
		Err:    err,
	}
}

func window(text string, offset int64) string {
	start := int(offset) - windowRadius
	if start < 0 {
		start = 0
	}
	end := int(offset) + windowRadius
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}
	return text[start:end]
}
