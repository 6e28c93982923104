package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// InputPrompt is written before each interactive read.
const InputPrompt = ">>> "

// LinePrompter reads one human turn per line. io.EOF ends the session. A read canceled by
// its context keeps running in the background and its line goes to the next ReadTurn.
type LinePrompter struct {
	r       *bufio.Reader
	w       io.Writer
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewLinePrompter creates a LinePrompter reading r and prompting on w.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{r: bufio.NewReader(r), w: w}
}

func (p *LinePrompter) ReadTurn(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.w, InputPrompt)

	if p.pending == nil {
		p.pending = make(chan lineResult, 1)
		go func(ch chan<- lineResult) {
			line, err := p.r.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}(p.pending)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-p.pending:
		p.pending = nil
		if res.err != nil {
			// A last line without newline still counts.
			if !errors.Is(res.err, io.EOF) || res.line == "" {
				return "", res.err
			}
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}
