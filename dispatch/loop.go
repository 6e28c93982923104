// Package dispatch runs the conversation between the model and the query engine.
//
// Each round sends the conversation to the completion backend, reads the labeled lines it
// continues with, executes the first Assistant call and appends the result as a System turn.
// The session ends on exit, on say in single-shot mode, or on a protocol violation the
// model cannot recover from.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/fncall"
	"github.com/gamazeps/encode-llama/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCall                = errors.New("dispatch: no actionable call in model output")
	ErrUnrecognizedOperation = errors.New("dispatch: unrecognized operation")
	ErrTooManyRounds         = errors.New("dispatch: too many rounds")

	// errLookahead marks a batch in which the model wrote a System line itself.
	errLookahead = errors.New("dispatch: model emitted a System line")
)

// BackendErrorMarker is the result appended when the completion backend fails. Backend
// failures never end a session; MaxRounds bounds a session that keeps failing.
const BackendErrorMarker = "Error"

// FatalError aborts a session. Conversation is the full text at the time of failure.
type FatalError struct {
	Err          error
	Conversation string
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Prompter supplies human turns in interactive mode.
type Prompter interface {
	ReadTurn(ctx context.Context) (string, error)
}

// TokenCounter estimates the token length of a text.
type TokenCounter interface {
	Count(text string) int
}

// Config tunes a Loop.
type Config struct {
	Mode      llama.Mode
	MaxTokens int
	// Verbose echoes raw protocol lines to Out.
	Verbose bool
	// MaxRounds stops a session after that many completions. Zero means no limit.
	MaxRounds int
	// ContextWindow is the model context size used for the token budget warning.
	ContextWindow int

	Out    io.Writer
	Input  Prompter
	Sinks  []llama.TranscriptSink
	Tokens TokenCounter
}

// Loop is one session. It is not safe for concurrent use; run one Loop per session over a
// shared Engine.
type Loop struct {
	backend llama.Backend
	engine  *query.Engine
	cfg     Config

	conv    *llama.Conversation
	session llama.Session
	state   State
}

// New creates a Loop.
func New(backend llama.Backend, engine *query.Engine, cfg Config) *Loop {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Mode == "" {
		cfg.Mode = llama.ModeSingleShot
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Loop{
		backend: backend,
		engine:  engine,
		cfg:     cfg,
		conv:    llama.NewConversation(),
		state:   StateAwaitingModel,
	}
}

// Conversation returns the session conversation.
func (l *Loop) Conversation() *llama.Conversation { return l.conv }

// Session returns the session metadata, set once Run starts.
func (l *Loop) Session() llama.Session { return l.session }

// State returns the current state.
func (l *Loop) State() State { return l.state }

// Run drives the session that starts with question until it terminates. Protocol violations
// are returned as *FatalError.
func (l *Loop) Run(ctx context.Context, question string) error {
	l.session = llama.Session{
		ID:        uuid.NewString(),
		Backend:   l.backend.Name(),
		Mode:      l.cfg.Mode,
		Question:  question,
		CreatedAt: time.Now(),
	}
	ctx = llama.WithSessionID(ctx, l.session.ID)
	l.conv.Append(llama.LabelUser, question)

	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rounds++
		if l.cfg.MaxRounds > 0 && rounds > l.cfg.MaxRounds {
			return l.fatal(fmt.Errorf("%w: limit is %d", ErrTooManyRounds, l.cfg.MaxRounds))
		}

		l.setState(StateAwaitingModel)
		text, err := l.complete(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("backend", l.backend.Name()).Int("round", rounds).Msg("dispatch: completion failed")
			l.appendMessage(BackendErrorMarker)
			continue
		}

		l.setState(StateReceivingLines)
		call, err := l.receive(text)
		if errors.Is(err, errLookahead) {
			log.Debug().Str("session_id", l.session.ID).Msg("dispatch: discarding batch with premature System line")
			continue
		}
		var parseErr *fncall.ParseError
		if errors.Is(err, ErrNoCall) || errors.As(err, &parseErr) {
			return l.fatal(err)
		}

		l.setState(StateCallReady)
		next, err := l.execute(call, err)
		if err != nil {
			return err
		}

		switch next {
		case StateAwaitingUser:
			l.setState(StateAwaitingUser)
			input, err := l.readUser(ctx)
			if errors.Is(err, io.EOF) {
				return l.finish(ctx)
			}
			if err != nil {
				return err
			}
			l.conv.Append(llama.LabelUser, input)
		case StateTerminated:
			return l.finish(ctx)
		}
	}
}

func (l *Loop) complete(ctx context.Context) (string, error) {
	text := l.conv.String()
	if l.cfg.Tokens != nil {
		n := l.cfg.Tokens.Count(text)
		ev := log.Debug()
		if l.cfg.ContextWindow > 0 && n+l.cfg.MaxTokens > l.cfg.ContextWindow {
			ev = log.Warn()
		}
		ev.Int("tokens", n).Int("max_tokens", l.cfg.MaxTokens).Int("context_window", l.cfg.ContextWindow).Msg("dispatch: conversation size")
	}
	return l.backend.Complete(ctx, text, l.cfg.MaxTokens)
}

// receive consumes the labeled lines of one completion. Thoughts are committed together
// with the first Assistant line; a System line before it discards the whole batch.
func (l *Loop) receive(text string) (fncall.Call, error) {
	var pending []llama.Turn
	for _, line := range ProtocolLines(text) {
		l.echo("RX: " + line)
		turn, _ := llama.ParseTurn(line)

		switch turn.Label {
		case llama.LabelSystem:
			return nil, errLookahead
		case llama.LabelThoughts:
			pending = append(pending, turn)
		case llama.LabelAssistant:
			l.commit(pending)
			l.conv.Append(llama.LabelAssistant, turn.Content)
			return fncall.ParseLine(line)
		}
	}
	l.commit(pending)
	return nil, ErrNoCall
}

func (l *Loop) commit(turns []llama.Turn) {
	for _, t := range turns {
		l.conv.Append(t.Label, t.Content)
	}
}

// execute runs a parsed call and returns the state to continue in. callErr is the
// validation error from parsing, answered to the model instead of running the call.
func (l *Loop) execute(call fncall.Call, callErr error) (State, error) {
	l.setState(StateExecuting)
	log.Debug().Str("session_id", l.session.ID).Str("function", call.Function()).Msg("dispatch: calling function")
	l.echo(fmt.Sprintf("Calling function %s %+v", call.Function(), call))

	var verr *fncall.ValidationError
	if errors.As(callErr, &verr) {
		l.appendMessage(verr.Error())
		return StateAwaitingModel, nil
	}

	var (
		res query.Result
		err error
	)
	switch c := call.(type) {
	case fncall.Say:
		l.say(c.Message)
		if l.cfg.Mode == llama.ModeSingleShot {
			return StateTerminated, nil
		}
		return StateAwaitingUser, nil
	case fncall.Exit:
		return StateTerminated, nil
	case fncall.SearchGeneByName:
		res, err = l.engine.SearchGeneByName(c.Query, c.Fields, c.Feature)
	case fncall.SearchTranscriptByID:
		res, err = l.engine.SearchTranscriptByID(c.Query, c.Fields, c.Feature)
	case fncall.Search:
		res, err = l.engine.Search(query.Query{Filters: c.Filters, Fields: c.Fields})
	case fncall.TabularSearchDisplay:
		res, err = l.engine.TabularDisplay(query.Query{Filters: c.Filters, Fields: c.Fields})
	case fncall.CountOfType:
		res, err = l.engine.CountOfType(c.Feature, c.TranscriptID, c.GeneName)
	default:
		return StateTerminated, l.fatal(fmt.Errorf("%w: %q", ErrUnrecognizedOperation, call.Function()))
	}

	if err != nil {
		var qerr *query.ValidationError
		if !errors.As(err, &qerr) {
			log.Warn().Err(err).Str("function", call.Function()).Msg("dispatch: query failed")
		}
		l.appendMessage(err.Error())
		return StateAwaitingModel, nil
	}

	if d, ok := res.(query.Display); ok {
		fmt.Fprintln(l.cfg.Out, d.UserText())
	}

	payload, err := query.Marshal(res)
	if err != nil {
		return StateTerminated, err
	}
	l.appendSystem(payload)
	return StateAwaitingModel, nil
}

func (l *Loop) readUser(ctx context.Context) (string, error) {
	if l.cfg.Input == nil {
		return "", io.EOF
	}
	return l.cfg.Input.ReadTurn(ctx)
}

func (l *Loop) say(msg string) {
	if l.cfg.Verbose {
		fmt.Fprintf(l.cfg.Out, "Assistant says %s\n", msg)
		return
	}
	fmt.Fprintln(l.cfg.Out, msg)
}

// appendMessage appends a plain string result, JSON encoded like any other result.
func (l *Loop) appendMessage(msg string) {
	b, _ := json.Marshal(msg)
	l.appendSystem(string(b))
}

func (l *Loop) appendSystem(payload string) {
	l.setState(StateAppendingResult)
	l.echo("TX: " + payload)
	l.conv.Append(llama.LabelSystem, payload)
}

func (l *Loop) finish(ctx context.Context) error {
	l.setState(StateTerminated)

	var errs []error
	turns := l.conv.Turns()
	for _, sink := range l.cfg.Sinks {
		if err := sink.WriteTranscript(ctx, l.session, turns); err != nil {
			log.Error().Err(err).Str("session_id", l.session.ID).Msg("dispatch: write transcript failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) fatal(err error) error {
	l.setState(StateTerminated)
	return &FatalError{Err: err, Conversation: l.conv.String()}
}

func (l *Loop) echo(line string) {
	if l.cfg.Verbose {
		fmt.Fprintln(l.cfg.Out, line)
	}
}

func (l *Loop) setState(s State) {
	if l.state == s {
		return
	}
	log.Trace().Str("from", l.state.String()).Str("to", s.String()).Msg("dispatch: state")
	l.state = s
}

// ProtocolLines keeps the lines of a completion that start with Assistant, Thoughts or
// System labels, in order.
func ProtocolLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, llama.LabelAssistant.Prefix()) ||
			strings.HasPrefix(line, llama.LabelThoughts.Prefix()) ||
			strings.HasPrefix(line, llama.LabelSystem.Prefix()) {
			out = append(out, line)
		}
	}
	return out
}
