package engine

import "fmt"

// Default generation parameters, matching the model-agnostic defaults
// users expect from a local chat runner.
const (
	DefaultMaxTokens     = 512
	DefaultTemperature   = 0.3
	DefaultTopK          = 0
	DefaultTopP          = 0.0
	DefaultRepeatPenalty = 1.1
	DefaultRepeatLastN   = 64
	DefaultSeed          = 299792458
	DefaultBatchSize     = 128
)

// GenerateOptions configures one generation call. Zero-value fields
// are filled from the defaults by withDefaults; the struct is copied
// into the Generator and never mutated afterwards.
type GenerateOptions struct {
	// MaxTokens bounds the number of generated tokens.
	MaxTokens int

	// Temperature scales logits before sampling. 0 selects the
	// greedy path, which ignores TopK, TopP, and Seed.
	Temperature float64

	// TopK keeps only the k highest logits when > 0.
	TopK int

	// TopP keeps the smallest candidate prefix whose cumulative
	// probability reaches p, when in (0, 1]. 1.0 keeps everything.
	TopP float64

	// RepeatPenalty divides positive logits of recently seen tokens
	// (and multiplies negative ones). 1.0 disables the penalty.
	RepeatPenalty float64

	// RepeatLastN is the window of recent token ids the penalty
	// consults.
	RepeatLastN int

	// Seed makes sampling reproducible. Combined with the token
	// position so each draw gets its own stream.
	Seed uint64

	// SystemPrompt, when set, is rendered as a synthetic leading
	// system message on every turn. It survives ClearHistory.
	SystemPrompt string

	// BatchSize is the prefill chunk size per forward call.
	BatchSize int
}

// DefaultOptions returns the fully populated default configuration.
// Callers override fields from here; zero values for Temperature,
// TopK, TopP, and RepeatLastN are meaningful and never backfilled.
func DefaultOptions() GenerateOptions {
	return GenerateOptions{
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		TopK:          DefaultTopK,
		TopP:          DefaultTopP,
		RepeatPenalty: DefaultRepeatPenalty,
		RepeatLastN:   DefaultRepeatLastN,
		Seed:          DefaultSeed,
		BatchSize:     DefaultBatchSize,
	}
}

// withDefaults fills only the structural fields a zero value cannot
// mean anything by.
func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Validate rejects option combinations the sampler cannot honor.
func (o GenerateOptions) Validate() error {
	if o.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", o.MaxTokens)
	}
	if o.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %g", o.Temperature)
	}
	if o.TopK < 0 {
		return fmt.Errorf("top_k must be positive, got %d", o.TopK)
	}
	if o.TopP < 0 || o.TopP > 1 {
		return fmt.Errorf("top_p must be in (0,1], got %g", o.TopP)
	}
	if o.RepeatPenalty != 0 && o.RepeatPenalty < 1 {
		return fmt.Errorf("repeat_penalty must be >= 1.0, got %g", o.RepeatPenalty)
	}
	if o.RepeatLastN < 0 {
		return fmt.Errorf("repeat_last_n must be non-negative, got %d", o.RepeatLastN)
	}
	if o.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive, got %d", o.BatchSize)
	}
	return nil
}
