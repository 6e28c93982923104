package llama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	ErrEmptyPrompt    = errors.New("llama: prompt is empty")
	ErrBackendFailed  = errors.New("llama: backend error")
	ErrUnknownBackend = errors.New("llama: unknown backend")
)

// Backend turns accumulated conversation text into continuation text.
type Backend interface {
	Complete(ctx context.Context, conversation string, maxTokens int) (string, error)
	Name() string
}

// BackendOptions configures a backend built through the registry.
type BackendOptions struct {
	URL       string
	Model     string
	TokenFile string
	// Delay is slept after every call, for providers that rate-limit.
	Delay  time.Duration
	Prompt string
	Client *http.Client
	Logger RequestLogger
}

// BackendFactory builds a Backend from options.
type BackendFactory func(opts BackendOptions) (Backend, error)

var backends = &backendRegistry{factories: make(map[string]BackendFactory)}

type backendRegistry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// RegisterBackend makes a backend available by name. Backend packages call it from init.
func RegisterBackend(name string, factory BackendFactory) {
	backends.mu.Lock()
	defer backends.mu.Unlock()
	backends.factories[name] = factory
}

// NewBackend builds the named backend.
func NewBackend(name string, opts BackendOptions) (Backend, error) {
	backends.mu.RLock()
	factory, ok := backends.factories[name]
	backends.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	if opts.Prompt == "" {
		opts.Prompt = SystemPrompt
	}
	return factory(opts)
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	backends.mu.RLock()
	defer backends.mu.RUnlock()

	names := make([]string, 0, len(backends.factories))
	for name := range backends.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
