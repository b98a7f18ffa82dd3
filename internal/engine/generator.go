package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theawakener0/oxide/internal/logger"
	"github.com/theawakener0/oxide/internal/metrics"
	"github.com/theawakener0/oxide/internal/template"
)

// state tracks where a generation run is in its lifecycle, for logging
// and debugging. Transitions are linear: idle, rendering, prefilling,
// decoding, finalizing, back to idle; any failure jumps to errored.
type state int

const (
	stateIdle state = iota
	stateRendering
	statePrefilling
	stateDecoding
	stateFinalizing
	stateErrored
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRendering:
		return "rendering"
	case statePrefilling:
		return "prefilling"
	case stateDecoding:
		return "decoding"
	case stateFinalizing:
		return "finalizing"
	case stateErrored:
		return "errored"
	}
	return "unknown"
}

// Generator orchestrates one generation at a time: render the
// conversation, encode, prefill the model, then the decode loop with
// the sampler, streaming events to the caller. One logical generation
// is in flight per instance; a second Generate while one runs returns
// ErrBusy.
type Generator struct {
	mu sync.Mutex

	backend  Backend
	tok      Tokenizer
	renderer *template.Renderer
	sampler  *Sampler
	history  *History
	tracker  *ContextTracker
	cache    *PromptCache
	opts     GenerateOptions
	log      *logger.Logger

	state state

	// contextTokens mirrors the token ids the backend has actually
	// consumed, so a follow-up turn whose rendered prompt extends the
	// previous context can skip re-prefilling the shared prefix.
	contextTokens []int
}

// New builds a Generator over the given collaborators. contextLimit is
// the model's context length from its metadata; 0 disables overflow
// tracking. cache may be nil.
func New(b Backend, t Tokenizer, r *template.Renderer, contextLimit int, cache *PromptCache, opts GenerateOptions) *Generator {
	opts = opts.withDefaults()
	return &Generator{
		backend:  b,
		tok:      t,
		renderer: r,
		sampler:  NewSampler(opts),
		history:  NewHistory(),
		tracker:  NewContextTracker(contextLimit),
		cache:    cache,
		opts:     opts,
		log:      logger.Log.With("engine"),
	}
}

// Options returns the configuration the generator was built with.
func (g *Generator) Options() GenerateOptions { return g.opts }

// History exposes the conversation store, e.g. for transcripts.
func (g *Generator) History() *History { return g.history }

// ContextUsed returns tokens committed to the model context so far.
func (g *Generator) ContextUsed() int { return g.tracker.Used() }

// ContextLimit returns the model's context length.
func (g *Generator) ContextLimit() int { return g.tracker.Limit() }

// ContextPercentage returns context usage in [0, 100].
func (g *Generator) ContextPercentage() float64 { return g.tracker.Percentage() }

// Generate runs one request and returns the full generated text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.GenerateStream(ctx, prompt, nil)
}

// GenerateStream runs one request, delivering events to fn as they are
// produced. fn runs synchronously inside the decode loop. The returned
// text is the concatenation of all Token fragments.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, fn StreamFunc) (string, error) {
	if !g.mu.TryLock() {
		return "", ErrBusy
	}
	defer g.mu.Unlock()

	start := time.Now()
	reqID := uuid.NewString()[:8]
	g.log.Debug("generation started", "request_id", reqID, "prompt_chars", len(prompt))

	text, err := g.run(ctx, reqID, prompt, fn)
	switch {
	case err == nil:
		g.state = stateIdle
		metrics.RecordGeneration("ok", g.tracker.Used(), time.Since(start))
		g.log.Info("generation complete",
			"request_id", reqID,
			"chars", len(text),
			"context_used", g.tracker.Used(),
			"duration", time.Since(start).String())
	case errors.Is(err, ErrCancelled):
		g.state = stateIdle
		metrics.RecordGeneration("cancelled", g.tracker.Used(), time.Since(start))
		g.log.Info("generation cancelled", "request_id", reqID)
	default:
		g.state = stateErrored
		metrics.RecordGeneration("error", g.tracker.Used(), time.Since(start))
		g.log.Error("generation failed", "request_id", reqID, "error", err.Error())
	}
	return text, err
}

func (g *Generator) run(ctx context.Context, reqID, prompt string, fn StreamFunc) (string, error) {
	emit := fn
	if emit == nil {
		emit = func(StreamEvent) {}
	}

	// Rendering. The user turn is not committed to history yet; both
	// user and assistant messages land together in finalization so a
	// failed run leaves the conversation exactly as it was.
	g.state = stateRendering
	userMsg := template.Message{Role: template.RoleUser, Content: prompt}
	msgs := g.renderMessages(userMsg)

	renderStart := time.Now()
	rendered, err := g.renderer.Render(msgs)
	if err != nil {
		return "", &TemplateError{Err: err}
	}
	metrics.TemplateRenderDuration.Observe(time.Since(renderStart).Seconds())

	tokens, err := g.encode(rendered)
	if err != nil {
		return "", &EncodeError{Err: err}
	}

	// Prefilling.
	g.state = statePrefilling
	logits, err := g.prefill(ctx, reqID, tokens, emit)
	if err != nil {
		return "", err
	}

	// Decoding.
	g.state = stateDecoding
	var sb strings.Builder
	ring := newTokenRing(g.opts.RepeatLastN)
	pos := len(g.contextTokens)
	generated := 0
	eos := g.backend.EOSTokenID()

	for generated < g.opts.MaxTokens {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		if g.tracker.WouldOverflow(1) {
			metrics.ContextOverflowStops.Inc()
			g.log.Warn("context window full, stopping early",
				"request_id", reqID,
				"used", g.tracker.Used(),
				"limit", g.tracker.Limit())
			break
		}

		stepStart := time.Now()
		id, err := g.sampler.Sample(logits, ring.Window(), pos)
		if err != nil {
			return "", err
		}
		if id == eos {
			break
		}

		g.tracker.Record(1)
		ring.Push(id)
		generated++

		fragment, err := g.tok.DecodeNext(id)
		if err != nil {
			return "", &DecodeError{Token: id, Err: err}
		}
		if fragment != "" {
			sb.WriteString(fragment)
			emit(StreamEvent{Kind: EventToken, Fragment: fragment})
		}
		metrics.RecordDecodeStep(time.Since(stepStart))

		if generated == g.opts.MaxTokens {
			break
		}

		logits, err = g.backend.Forward(ctx, []int{id}, pos)
		if err != nil {
			if ctx.Err() != nil {
				return "", ErrCancelled
			}
			return "", &ModelError{Err: err}
		}
		g.contextTokens = append(g.contextTokens, id)
		pos++
	}

	rest, err := g.tok.DecodeRest()
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	if rest != "" {
		sb.WriteString(rest)
		emit(StreamEvent{Kind: EventToken, Fragment: rest})
	}

	// Finalizing: commit both turns, then signal completion.
	g.state = stateFinalizing
	text := sb.String()
	g.history.Append(userMsg)
	g.history.Append(template.Message{Role: template.RoleAssistant, Content: text})
	emit(StreamEvent{Kind: EventDone})
	return text, nil
}

// renderMessages assembles the render input: optional synthetic system
// message, committed history, then the uncommitted user turn.
func (g *Generator) renderMessages(user template.Message) []template.Message {
	var msgs []template.Message
	if g.opts.SystemPrompt != "" {
		msgs = append(msgs, template.Message{Role: template.RoleSystem, Content: g.opts.SystemPrompt})
	}
	msgs = append(msgs, g.history.Snapshot()...)
	return append(msgs, user)
}

func (g *Generator) encode(rendered string) ([]int, error) {
	if cached := g.cache.Get(rendered); cached != nil {
		return cached, nil
	}
	tokens, err := g.tok.Encode(rendered)
	if err != nil {
		return nil, err
	}
	g.cache.Put(rendered, tokens)
	return tokens, nil
}

// prefill feeds the prompt into the backend in BatchSize chunks,
// reusing any prefix the backend has already consumed. Returns the
// logits for the first decode position.
func (g *Generator) prefill(ctx context.Context, reqID string, tokens []int, emit StreamFunc) ([]float32, error) {
	if g.tracker.Limit() > 0 && len(tokens) >= g.tracker.Limit() {
		return nil, &ModelError{Err: fmt.Errorf("prompt of %d tokens exceeds context length %d", len(tokens), g.tracker.Limit())}
	}

	// Reuse the committed context when the new prompt extends it,
	// otherwise start the backend over.
	reuse := commonPrefix(g.contextTokens, tokens)
	if reuse < len(g.contextTokens) {
		g.backend.Reset()
		g.tracker.Reset()
		g.contextTokens = g.contextTokens[:0]
		reuse = 0
	}
	// A finished turn leaves the tracker one ahead of the committed
	// context: its final sampled token is counted but never forwarded.
	// Re-anchor to the reused prefix so the loop below doesn't count
	// that token a second time.
	if used := g.tracker.Used(); used != reuse {
		g.tracker.Record(reuse - used)
	}
	pending := tokens[reuse:]
	if len(pending) == 0 {
		// Degenerate re-ask of an identical prompt: replay the last
		// token so the backend has logits to hand back. The tracker
		// already counted it, so undo one before the loop re-records.
		if reuse == 0 {
			return nil, &ModelError{Err: fmt.Errorf("prompt encoded to zero tokens")}
		}
		pending = tokens[reuse-1:]
		g.contextTokens = g.contextTokens[:reuse-1]
		g.tracker.Record(-1)
		reuse--
	}

	start := time.Now()
	var logits []float32
	processed := reuse
	for off := 0; off < len(pending); off += g.opts.BatchSize {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		end := off + g.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[off:end]

		out, err := g.backend.Forward(ctx, chunk, reuse+off)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			return nil, &ModelError{Err: err}
		}
		logits = out
		g.contextTokens = append(g.contextTokens, chunk...)
		g.tracker.Record(len(chunk))
		processed += len(chunk)
		emit(StreamEvent{Kind: EventPrefillStatus, TokensProcessed: processed})
	}
	metrics.RecordPrefill(len(pending), time.Since(start))
	g.log.Debug("prefill complete",
		"request_id", reqID,
		"prompt_tokens", len(tokens),
		"reused", reuse,
		"duration", time.Since(start).String())
	return logits, nil
}

// Warmup runs n synthetic tokens through the backend to force one-time
// costs (page faults, kernel startup) before the first real request,
// then resets the backend. History and the context tracker are left
// untouched.
func (g *Generator) Warmup(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if !g.mu.TryLock() {
		return ErrBusy
	}
	defer g.mu.Unlock()

	start := time.Now()
	synthetic := make([]int, n)
	pos := 0
	for off := 0; off < n; off += g.opts.BatchSize {
		end := off + g.opts.BatchSize
		if end > n {
			end = n
		}
		if _, err := g.backend.Forward(ctx, synthetic[off:end], pos); err != nil {
			g.backend.Reset()
			g.contextTokens = g.contextTokens[:0]
			return &ModelError{Err: err}
		}
		pos = end
	}
	g.backend.Reset()
	g.contextTokens = g.contextTokens[:0]
	metrics.WarmupDuration.Observe(time.Since(start).Seconds())
	g.log.Info("warmup complete", "tokens", n, "duration", time.Since(start).String())
	return nil
}

// ClearHistory drops all conversation turns and resets the model
// context. The configured system prompt survives: it is re-applied on
// every render rather than stored as a turn.
func (g *Generator) ClearHistory() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history.Clear()
	g.backend.Reset()
	g.contextTokens = g.contextTokens[:0]
	g.tracker.Reset()
}

func commonPrefix(a, b []int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

