package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// ErrNoJSONObject is reported by the brace-span strategy when the response
// has no '{' ... '}' span at all.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// Strategy is one way of turning raw model output into a JSON value.
type Strategy struct {
	Name  string
	Parse func(raw string) (any, error)
}

// Attempt records the outcome of a single strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// ParseError is returned when every strategy failed.
type ParseError struct {
	Attempts []Attempt
}

func (e *ParseError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return "could not parse JSON response from model (" + strings.Join(reasons, "; ") + ")"
}

// DefaultStrategies is the ordered chain used by ParseResponse.
var DefaultStrategies = []Strategy{
	{Name: "direct", Parse: ParseDirect},
	{Name: "brace-span", Parse: ParseBraceSpan},
}

// ParseResponse runs the strategies in order and returns the first value that
// parses, together with the attempts made so far.
func ParseResponse(raw string, strategies ...Strategy) (any, []Attempt, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	attempts := make([]Attempt, 0, len(strategies))
	for _, s := range strategies {
		v, err := s.Parse(raw)
		attempts = append(attempts, Attempt{Strategy: s.Name, Err: err})
		if err == nil {
			log.WithField("strategy", s.Name).Debug("Parsed model response")
			return v, attempts, nil
		}
		log.WithError(err).WithField("strategy", s.Name).Debug("Parse strategy failed")
	}
	return nil, attempts, &ParseError{Attempts: attempts}
}

// ParseDirect decodes the whole response as a single JSON value.
func ParseDirect(raw string) (any, error) {
	return decodeJSON(raw)
}

// ParseBraceSpan decodes the text between the first '{' and the last '}'.
func ParseBraceSpan(raw string) (any, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return nil, ErrNoJSONObject
	}
	return decodeJSON(raw[start : end+1])
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number so
// their literal text survives.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// Unwrap returns the list of orders contained in a parsed response: the
// "orders" array of a wrapper object, the value itself when it is already a
// list, nothing for a JSON null, or a one-element list otherwise.
func Unwrap(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case map[string]any:
		if inner, ok := t["orders"].([]any); ok {
			log.WithField("orders", len(inner)).Debug("Unwrapped 'orders' wrapper")
			return inner
		}
	}
	return []any{v}
}

// Stringify renders a loosely typed JSON value as a string. Missing and null
// values become "".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}

// SetLogLevel sets the logging level for the orders package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
