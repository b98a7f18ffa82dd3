package engine

import "context"

// Backend is the model collaborator: given token ids and the position
// they start at, it returns next-token logits. The transformer math,
// weight storage, and KV cache live entirely behind this interface.
type Backend interface {
	// Forward feeds tokens starting at position pos into the model's
	// running context and returns the logits for the next position.
	Forward(ctx context.Context, tokens []int, pos int) ([]float32, error)

	// VocabSize is the length of the logits vector Forward returns.
	VocabSize() int

	// EOSTokenID is the designated end-of-sequence id.
	EOSTokenID() int

	// Reset clears the model's running context.
	Reset()
}

// Tokenizer is the text/token-id collaborator. DecodeNext supports
// streaming: a single id may decode to zero, one, or several display
// characters, with incomplete multi-byte sequences held back until
// DecodeRest flushes them.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	DecodeNext(id int) (string, error)
	DecodeRest() (string, error)
}
