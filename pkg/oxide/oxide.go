// Package oxide is the library surface: load a model once, then run
// one or more generations against it, streaming or not.
package oxide

import (
	"context"
	"fmt"
	"time"

	"github.com/theawakener0/oxide/internal/backend"
	"github.com/theawakener0/oxide/internal/engine"
	"github.com/theawakener0/oxide/internal/gguf"
	"github.com/theawakener0/oxide/internal/logger"
	"github.com/theawakener0/oxide/internal/ollama"
	"github.com/theawakener0/oxide/internal/template"
	"github.com/theawakener0/oxide/internal/tokenizer"
)

// Re-exported engine types, so callers need only this package.
type (
	Options     = engine.GenerateOptions
	StreamEvent = engine.StreamEvent
	StreamFunc  = engine.StreamFunc
	Message     = template.Message
)

const (
	EventPrefillStatus = engine.EventPrefillStatus
	EventToken         = engine.EventToken
	EventDone          = engine.EventDone
)

// Sentinel results, re-exported for errors.Is checks.
var (
	ErrBusy      = engine.ErrBusy
	ErrCancelled = engine.ErrCancelled
)

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options { return engine.DefaultOptions() }

// Config describes everything a Session needs at construction. It is
// immutable once passed to New; there is no partially-built state.
type Config struct {
	// ModelRef is a GGUF path or an Ollama model name.
	ModelRef string

	// BackendAddr is the Arrow Flight model server, host:port.
	BackendAddr string

	// Options are the generation defaults for this session.
	Options Options

	// TemplateOverride replaces the model's embedded chat template.
	TemplateOverride string

	// PromptCacheTTL enables prompt-encoding memoization when > 0.
	PromptCacheTTL time.Duration

	// PromptCacheEntries caps the cache; 0 means unbounded.
	PromptCacheEntries uint64
}

// Session owns one loaded model and its conversation. Safe for one
// generation at a time; concurrent Generate calls get ErrBusy.
type Session struct {
	modelRef string
	md       gguf.Metadata
	gen      *engine.Generator
	remote   *backend.Flight
	cache    *engine.PromptCache
}

// New resolves the model reference, reads its metadata, connects to
// the model server, and returns a ready Session.
func New(ctx context.Context, cfg Config) (*Session, error) {
	path := cfg.ModelRef
	if ollama.IsModelName(path) {
		resolved, err := ollama.Resolve(path)
		if err != nil {
			return nil, err
		}
		logger.Log.Debug("resolved model name", "name", path, "path", resolved)
		path = resolved
	}

	f, err := gguf.LoadFile(path)
	if err != nil {
		return nil, err
	}
	md, err := gguf.Extract(f)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(f)
	if err != nil {
		return nil, err
	}
	vocabSize := md.VocabSize
	if vocabSize == 0 {
		vocabSize = tok.VocabSize()
	}

	source := md.ChatTemplate
	if cfg.TemplateOverride != "" {
		source = cfg.TemplateOverride
	}
	renderer, err := template.New(source)
	if err != nil {
		return nil, fmt.Errorf("oxide: chat template: %w", err)
	}

	remote, err := backend.DialFlight(ctx, cfg.BackendAddr, vocabSize, md.EOSTokenID)
	if err != nil {
		return nil, err
	}

	var cache *engine.PromptCache
	if cfg.PromptCacheTTL > 0 {
		cache = engine.NewPromptCache(cfg.PromptCacheTTL, cfg.PromptCacheEntries)
	}

	s := newSession(cfg.ModelRef, md, remote, tok, renderer, cache, cfg.Options)
	s.remote = remote
	logger.Log.Info("session ready",
		"model", md.Name,
		"architecture", md.Architecture,
		"context_length", md.ContextLength,
		"vocab", vocabSize)
	return s, nil
}

// newSession wires a session from already-built collaborators.
func newSession(ref string, md gguf.Metadata, b engine.Backend, t engine.Tokenizer, r *template.Renderer, cache *engine.PromptCache, opts Options) *Session {
	return &Session{
		modelRef: ref,
		md:       md,
		gen:      engine.New(b, t, r, md.ContextLength, cache, opts),
		cache:    cache,
	}
}

// Generate runs one request and returns the full response text.
func (s *Session) Generate(ctx context.Context, prompt string) (string, error) {
	return s.gen.Generate(ctx, prompt)
}

// GenerateStream runs one request, delivering events to fn in order.
func (s *Session) GenerateStream(ctx context.Context, prompt string, fn StreamFunc) (string, error) {
	return s.gen.GenerateStream(ctx, prompt, fn)
}

// GenerateBatch runs each prompt as an independent request, in order,
// and returns one response per prompt. The conversation is cleared
// before every prompt so earlier batch entries don't leak into later
// ones; on error the responses produced so far are returned alongside
// it.
func (s *Session) GenerateBatch(ctx context.Context, prompts []string) ([]string, error) {
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		s.gen.ClearHistory()
		text, err := s.gen.Generate(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
	return out, nil
}

// Warmup pushes n synthetic tokens through the backend to absorb
// first-request latency. No conversation state is touched.
func (s *Session) Warmup(ctx context.Context, n int) error {
	return s.gen.Warmup(ctx, n)
}

// ClearHistory drops the conversation but keeps the session's system
// prompt.
func (s *Session) ClearHistory() { s.gen.ClearHistory() }

// History returns a copy of the conversation so far.
func (s *Session) History() []Message { return s.gen.History().Snapshot() }

// RestoreHistory replaces the conversation with previously saved
// turns, e.g. from a transcript.
func (s *Session) RestoreHistory(msgs []Message) {
	s.gen.ClearHistory()
	for _, m := range msgs {
		s.gen.History().Append(m)
	}
}

// Metadata returns the loaded model's metadata.
func (s *Session) Metadata() gguf.Metadata { return s.md }

// ModelRef returns the reference the session was opened with.
func (s *Session) ModelRef() string { return s.modelRef }

func (s *Session) ContextUsed() int          { return s.gen.ContextUsed() }
func (s *Session) ContextLimit() int         { return s.gen.ContextLimit() }
func (s *Session) ContextPercentage() float64 { return s.gen.ContextPercentage() }

// Close releases the backend connection and stops the prompt cache.
func (s *Session) Close() error {
	s.cache.Stop()
	if s.remote != nil {
		return s.remote.Close()
	}
	return nil
}

// Generate is the one-shot form: open a session, run one request,
// tear everything down.
func Generate(ctx context.Context, cfg Config, prompt string) (string, error) {
	s, err := New(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer s.Close()
	return s.Generate(ctx, prompt)
}
