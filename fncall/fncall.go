// Package fncall extracts structured function calls from model output lines.
package fncall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/query"
)

// EndOfTurn is the marker some backends leave at the end of a completion.
const EndOfTurn = "</s>"

// Operation names understood by the dispatcher.
const (
	OpSearchGeneByName     = "search_gene_by_name"
	OpSearchTranscriptByID = "search_transcript_by_id"
	OpSearch               = "search"
	OpTabularSearchDisplay = "tabular_search_display"
	OpCountOfType          = "count_of_type"
	OpSay                  = "say"
	OpExit                 = "exit"
)

// Call is one parsed function call. The set of implementations is closed.
type Call interface {
	Function() string
	call()
}

// SearchGeneByName searches rows by gene_name.
type SearchGeneByName struct {
	Query   string
	Fields  []string
	Feature llama.Feature
}

// SearchTranscriptByID searches rows by transcript_id.
type SearchTranscriptByID struct {
	Query   string
	Fields  []string
	Feature llama.Feature
}

// Search is a generic equality search.
type Search struct {
	Filters []query.Filter
	Fields  []string
}

// TabularSearchDisplay is a search whose rows go to the user instead of the model.
type TabularSearchDisplay struct {
	Filters []query.Filter
	Fields  []string
}

// CountOfType counts rows of a feature kind.
type CountOfType struct {
	Feature      string
	TranscriptID string
	GeneName     string
}

// Say shows a message to the user.
type Say struct {
	Message string
}

// Exit ends the session.
type Exit struct{}

// Unknown is a call naming an operation outside the supported set.
type Unknown struct {
	Name string
}

func (SearchGeneByName) Function() string     { return OpSearchGeneByName }
func (SearchTranscriptByID) Function() string { return OpSearchTranscriptByID }
func (Search) Function() string               { return OpSearch }
func (TabularSearchDisplay) Function() string { return OpTabularSearchDisplay }
func (CountOfType) Function() string          { return OpCountOfType }
func (Say) Function() string                  { return OpSay }
func (Exit) Function() string                 { return OpExit }
func (u Unknown) Function() string            { return u.Name }

func (SearchGeneByName) call()     {}
func (SearchTranscriptByID) call() {}
func (Search) call()               {}
func (TabularSearchDisplay) call() {}
func (CountOfType) call()          {}
func (Say) call()                  {}
func (Exit) call()                 {}
func (Unknown) call()              {}

// ParseError means a payload is not exactly one well-formed call object.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fncall: cannot parse call from %q: %v", e.Payload, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError means a well-formed call carries missing or extraneous fields. Its message
// is meant to be shown to the model.
type ValidationError struct {
	Function string
	Message  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	errNoObject       = errors.New("no JSON object found")
	errMultipleObject = errors.New("more than one JSON object")
	errNoFunction     = errors.New(`missing "function" name`)
)

// ParseLine parses an "Assistant:" line. See Parse for the payload rules.
func ParseLine(line string) (Call, error) {
	payload, ok := strings.CutPrefix(line, llama.LabelAssistant.Prefix())
	if !ok {
		return nil, &ParseError{Payload: line, Err: fmt.Errorf("line is not labeled %s", llama.LabelAssistant.Prefix())}
	}
	return Parse(payload)
}

// Parse decodes exactly one call object from payload. A trailing end-of-turn marker and any
// text around the object are ignored; a second object or malformed JSON is a *ParseError.
// Calls with missing or extraneous fields return the call and a *ValidationError.
func Parse(payload string) (Call, error) {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimSpace(strings.TrimSuffix(payload, EndOfTurn))

	obj, err := extractObject(payload)
	if err != nil {
		return nil, &ParseError{Payload: payload, Err: err}
	}

	raw, ok := obj["function"]
	if !ok {
		return nil, &ParseError{Payload: payload, Err: errNoFunction}
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, &ParseError{Payload: payload, Err: fmt.Errorf(`"function" is not a string: %w`, err)}
	}
	delete(obj, "function")

	switch name {
	case OpSearchGeneByName:
		q, fields, feature, err := decodeNamedSearch(name, obj)
		return SearchGeneByName{Query: q, Fields: fields, Feature: feature}, err
	case OpSearchTranscriptByID:
		q, fields, feature, err := decodeNamedSearch(name, obj)
		return SearchTranscriptByID{Query: q, Fields: fields, Feature: feature}, err
	case OpSearch:
		filters, fields, err := decodeSearch(name, obj)
		return Search{Filters: filters, Fields: fields}, err
	case OpTabularSearchDisplay:
		filters, fields, err := decodeSearch(name, obj)
		return TabularSearchDisplay{Filters: filters, Fields: fields}, err
	case OpCountOfType:
		return decodeCount(obj)
	case OpSay:
		var msg string
		if err := decodeString(obj, "message", &msg); err != nil {
			return Say{}, &ValidationError{Function: name, Message: err.Error()}
		}
		return Say{Message: msg}, nil
	case OpExit:
		return Exit{}, nil
	default:
		return Unknown{Name: name}, nil
	}
}

// extractObject finds the one JSON object in s. Braces that do not open an object, such as
// "{search}" in prose, are skipped. A second object, or a broken one, is an error.
func extractObject(s string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	found := false
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '{')
		if j < 0 {
			break
		}
		start := i + j

		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var candidate map[string]json.RawMessage
		if err := dec.Decode(&candidate); err != nil {
			if opensObject(s[start:]) {
				return nil, err
			}
			i = start + 1
			continue
		}
		if found {
			return nil, errMultipleObject
		}
		obj, found = candidate, true
		i = start + int(dec.InputOffset())
	}
	if !found {
		return nil, errNoObject
	}
	return obj, nil
}

// opensObject reports whether s, starting at '{', begins like a JSON object: a key or an
// immediate close.
func opensObject(s string) bool {
	rest := strings.TrimLeft(s[1:], " \t\r\n")
	return rest == "" || rest[0] == '"' || rest[0] == '}'
}

func decodeNamedSearch(name string, obj map[string]json.RawMessage) (string, []string, llama.Feature, error) {
	if err := unexpectedKeys(name, obj, "query", "fields", "feature"); err != nil {
		return "", nil, "", err
	}
	var q string
	if err := decodeString(obj, "query", &q); err != nil {
		return "", nil, "", &ValidationError{Function: name, Message: err.Error()}
	}
	fields, err := decodeFields(name, obj)
	if err != nil {
		return "", nil, "", err
	}
	var feature string
	if _, ok := obj["feature"]; ok {
		if err := decodeString(obj, "feature", &feature); err != nil {
			return "", nil, "", &ValidationError{Function: name, Message: err.Error()}
		}
	}
	return q, fields, llama.Feature(feature), nil
}

// decodeSearch treats every schema field as an equality filter. Filters come out in schema
// order so identical calls build identical queries.
func decodeSearch(name string, obj map[string]json.RawMessage) ([]query.Filter, []string, error) {
	var extra []string
	for k := range obj {
		if k != "fields" && !llama.IsField(k) {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return nil, nil, &ValidationError{Function: name, Message: fmt.Sprintf("Unexpected keys [%s]", strings.Join(extra, ", "))}
	}

	var filters []query.Filter
	for _, field := range llama.Fields {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		v, err := literal(raw)
		if err != nil {
			return nil, nil, &ValidationError{Function: name, Message: fmt.Sprintf("Invalid value for `%s`: %v", field, err)}
		}
		filters = append(filters, query.Filter{Field: field, Value: v})
	}
	if len(filters) == 0 {
		return nil, nil, &ValidationError{Function: name, Message: "Missing search parameters"}
	}

	fields, err := decodeFields(name, obj)
	if err != nil {
		return nil, nil, err
	}
	return filters, fields, nil
}

func decodeCount(obj map[string]json.RawMessage) (Call, error) {
	if err := unexpectedKeys(OpCountOfType, obj, "feature", "transcript_id", "gene_name"); err != nil {
		return CountOfType{}, err
	}
	var c CountOfType
	if err := decodeString(obj, "feature", &c.Feature); err != nil {
		return CountOfType{}, &ValidationError{Function: OpCountOfType, Message: err.Error()}
	}
	for key, dst := range map[string]*string{"transcript_id": &c.TranscriptID, "gene_name": &c.GeneName} {
		if _, ok := obj[key]; !ok {
			continue
		}
		if err := decodeString(obj, key, dst); err != nil {
			return CountOfType{}, &ValidationError{Function: OpCountOfType, Message: err.Error()}
		}
	}
	return c, nil
}

func unexpectedKeys(name string, obj map[string]json.RawMessage, allowed ...string) error {
	var extra []string
	for k := range obj {
		if !slices.Contains(allowed, k) {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	slices.Sort(extra)
	return &ValidationError{Function: name, Message: fmt.Sprintf("Unexpected keys [%s]", strings.Join(extra, ", "))}
}

func decodeString(obj map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := obj[key]
	if !ok {
		return fmt.Errorf("Missing `%s` value", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("`%s` must be a string", key)
	}
	return nil
}

func decodeFields(name string, obj map[string]json.RawMessage) ([]string, error) {
	raw, ok := obj["fields"]
	if !ok {
		return nil, &ValidationError{Function: name, Message: "Missing `fields` value"}
	}
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &ValidationError{Function: name, Message: "`fields` must be a list of field names"}
	}
	return fields, nil
}

// literal turns a JSON scalar into the text compared against record fields, so 4.0 and "4"
// select the same rows as 4.
func literal(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return number(v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("expected a string or a number")
	}
}

// number spells integral values without a fraction so 4.0 matches "4".
func number(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
		return n.String()
	}
	return strconv.FormatInt(int64(f), 10)
}
