package engine

// EventKind tags a StreamEvent variant.
type EventKind int

const (
	// EventPrefillStatus reports prompt tokens processed so far,
	// emitted after each prefill forward call.
	EventPrefillStatus EventKind = iota
	// EventToken carries one decoded text fragment.
	EventToken
	// EventDone marks successful completion. Emitted exactly once
	// per successful generation, never on error or cancellation.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventPrefillStatus:
		return "prefill_status"
	case EventToken:
		return "token"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// StreamEvent is one generation event. Events arrive in strict order:
// zero or more PrefillStatus, then zero or more Token, then exactly
// one Done (or the call fails before Done is emitted).
type StreamEvent struct {
	Kind EventKind

	// Fragment is the decoded text for EventToken.
	Fragment string

	// TokensProcessed is the running prefill count for
	// EventPrefillStatus.
	TokensProcessed int
}

// StreamFunc receives events synchronously: the decode loop suspends
// while the callback runs, so delivery is in-order and at-most-once
// per token. A nil StreamFunc discards events.
type StreamFunc func(StreamEvent)
