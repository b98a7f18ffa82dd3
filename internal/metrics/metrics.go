package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GeneratedTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generated_tokens_total",
		Help: "The total number of tokens produced by the decode loop",
	})

	PromptTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prompt_tokens_total",
		Help: "The total number of prompt tokens submitted during prefill",
	})

	PrefillDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "prefill_duration_seconds",
		Help: "Duration of the prefill phase per generation",
	})

	DecodeStepDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "decode_step_duration_seconds",
		Help: "Duration of a single decode step",
	})

	GenerationDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "generation_duration_seconds",
		Help: "End-to-end duration of a generation request",
	})

	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generations_total",
		Help: "Total generation requests by outcome",
	}, []string{"outcome"})

	ContextUsedTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "context_used_tokens",
		Help: "Tokens currently committed to the model context",
	})

	ContextLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "context_length_tokens",
		Help:    "Distribution of context lengths at generation end",
		Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 32000},
	})

	ContextOverflowStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "context_overflow_stops_total",
		Help: "Generations ended early by the context overflow soft-stop",
	})

	PromptCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prompt_cache_hits_total",
		Help: "Encoded prompt lookups served from the prompt cache",
	})

	PromptCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prompt_cache_misses_total",
		Help: "Encoded prompt lookups that required a fresh encode",
	})

	TemplateRenderDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "template_render_duration_seconds",
		Help: "Duration of chat template rendering",
	})

	SamplerDraws = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sampler_draws_total",
		Help: "Sampler draws by path (greedy or stochastic)",
	}, []string{"path"})

	WarmupDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "warmup_duration_seconds",
		Help: "Duration of synthetic warmup passes",
	})
)

// RecordPrefill records one completed prefill phase.
func RecordPrefill(tokens int, d time.Duration) {
	PromptTokensTotal.Add(float64(tokens))
	PrefillDuration.Observe(d.Seconds())
}

// RecordDecodeStep records one produced token.
func RecordDecodeStep(d time.Duration) {
	GeneratedTokensTotal.Inc()
	DecodeStepDuration.Observe(d.Seconds())
}

// RecordGeneration records the outcome of a finished generation request.
// Outcome is one of "ok", "error", "cancelled".
func RecordGeneration(outcome string, contextUsed int, d time.Duration) {
	GenerationsTotal.WithLabelValues(outcome).Inc()
	GenerationDuration.Observe(d.Seconds())
	ContextUsedTokens.Set(float64(contextUsed))
	ContextLengthHistogram.Observe(float64(contextUsed))
}
