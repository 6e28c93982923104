// Package gtf reads GENCODE annotations in the GTF format.
//
// A line has nine tab separated columns. The ninth holds attributes written as
// key "value"; pairs. Attributes outside the record schema are ignored; tag and ont may
// repeat and are joined with a comma.
package gtf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	llama "github.com/gamazeps/encode-llama"
)

var ErrMalformedLine = errors.New("gtf: malformed line")

// columns are the fixed leading columns, in file order.
var columns = []string{"seqname", "source", "feature", "start", "end", "score", "strand", "frame"}

// repeated attributes are accumulated instead of overwritten.
var repeated = map[string]bool{"tag": true, "ont": true}

// LineError locates a parse failure.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("gtf: line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Reader reads records one line at a time.
type Reader struct {
	s    *bufio.Scanner
	line int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Read returns the next record, or io.EOF after the last one. Comment and blank lines are
// skipped.
func (r *Reader) Read() (llama.Record, error) {
	for r.s.Scan() {
		r.line++
		text := r.s.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := ParseLine(text)
		if err != nil {
			return llama.Record{}, &LineError{Line: r.line, Err: err}
		}
		return rec, nil
	}
	if err := r.s.Err(); err != nil {
		return llama.Record{}, fmt.Errorf("gtf: read: %w", err)
	}
	return llama.Record{}, io.EOF
}

// Parse reads every record from r. A "." column is read as an absent value.
func Parse(r io.Reader) ([]llama.Record, error) {
	rd := NewReader(r)
	var out []llama.Record
	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// ParseLine parses one annotation line.
func ParseLine(line string) (llama.Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != 9 {
		return llama.Record{}, fmt.Errorf("%w: %d columns, want 9", ErrMalformedLine, len(cols))
	}

	var rec llama.Record
	for i, field := range columns {
		value := cols[i]
		if value == "." {
			value = ""
		}
		if err := rec.Set(field, value); err != nil {
			return llama.Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
	}

	attrs, err := parseAttributes(cols[8])
	if err != nil {
		return llama.Record{}, err
	}
	for _, a := range attrs {
		if !llama.IsField(a.key) {
			continue
		}
		value := a.value
		if prev := rec.Text(a.key); repeated[a.key] && prev != "" {
			value = prev + "," + value
		}
		if err := rec.Set(a.key, value); err != nil {
			return llama.Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
	}

	if err := rec.Validate(); err != nil {
		return llama.Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return rec, nil
}

type attribute struct {
	key, value string
}

// parseAttributes splits `key "value"; key 2;` pairs. Values may be quoted or bare.
func parseAttributes(s string) ([]attribute, error) {
	var out []attribute
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, " ")
		if !ok {
			return nil, fmt.Errorf("%w: attribute %q has no value", ErrMalformedLine, part)
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out = append(out, attribute{key: key, value: value})
	}
	return out, nil
}
