package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/theawakener0/oxide/internal/gguf"
)

// Space markers used by the two vocabulary conventions found in GGUF
// files: SentencePiece stores " word" as "▁word", byte-level BPE as
// "Ġword".
const (
	spMarker  = "▁"
	bpeMarker = "Ġ"
)

// Tokenizer encodes text against the vocabulary embedded in a model
// file using greedy longest-match, with <0xNN> byte-fallback tokens
// for anything outside the vocabulary. Decoding is incremental:
// DecodeNext may hold back bytes until a multi-byte character is
// complete.
type Tokenizer struct {
	tokens []string
	vocab  map[string]int
	scores []float32

	maxTokenLen int
	spaceMarker string
	unkID       int
	byteIDs     [256]int // id of <0xNN>, or -1

	// pending holds decoded bytes that do not yet end on a rune
	// boundary.
	pending []byte
}

// New builds a tokenizer from the vocabulary arrays of a parsed model
// file.
func New(f *gguf.File) (*Tokenizer, error) {
	tokens := f.Vocab()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("tokenizer: no tokenizer.ggml.tokens in %s", f.Path)
	}

	t := &Tokenizer{
		tokens: tokens,
		vocab:  make(map[string]int, len(tokens)),
		scores: f.VocabScores(),
		unkID:  -1,
	}
	for i := range t.byteIDs {
		t.byteIDs[i] = -1
	}

	for i, tok := range tokens {
		t.vocab[tok] = i
		if len(tok) > t.maxTokenLen {
			t.maxTokenLen = len(tok)
		}
		if b, ok := parseByteToken(tok); ok {
			t.byteIDs[b] = i
		}
		if t.spaceMarker == "" {
			if strings.HasPrefix(tok, spMarker) {
				t.spaceMarker = spMarker
			} else if strings.HasPrefix(tok, bpeMarker) {
				t.spaceMarker = bpeMarker
			}
		}
	}
	if id, ok := t.vocab["<unk>"]; ok {
		t.unkID = id
	}
	return t, nil
}

// VocabSize returns the number of vocabulary entries.
func (t *Tokenizer) VocabSize() int { return len(t.tokens) }

// TokenID looks up a literal token string, e.g. a special token.
func (t *Tokenizer) TokenID(tok string) (int, bool) {
	id, ok := t.vocab[tok]
	return id, ok
}

// Encode converts text to token ids with greedy longest-match. Bytes
// with no vocabulary coverage fall back to <0xNN> tokens, then to the
// <unk> token; with neither available encoding fails.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	if t.spaceMarker != "" {
		text = strings.ReplaceAll(text, " ", t.spaceMarker)
	}

	var ids []int
	for pos := 0; pos < len(text); {
		limit := pos + t.maxTokenLen
		if limit > len(text) {
			limit = len(text)
		}
		matched := false
		for end := limit; end > pos; end-- {
			if id, ok := t.vocab[text[pos:end]]; ok {
				ids = append(ids, id)
				pos = end
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if id := t.byteIDs[text[pos]]; id >= 0 {
			ids = append(ids, id)
			pos++
			continue
		}
		if t.unkID >= 0 {
			_, size := utf8.DecodeRuneInString(text[pos:])
			ids = append(ids, t.unkID)
			pos += size
			continue
		}
		return nil, fmt.Errorf("tokenizer: no encoding for byte 0x%02X at offset %d", text[pos], pos)
	}
	return ids, nil
}

// DecodeNext appends one token's bytes to the stream and returns the
// text that is complete so far. The return is empty when the token
// ends mid-character; the held bytes are emitted once the character
// completes or DecodeRest flushes them.
func (t *Tokenizer) DecodeNext(id int) (string, error) {
	if id < 0 || id >= len(t.tokens) {
		return "", fmt.Errorf("tokenizer: token id %d out of range [0,%d)", id, len(t.tokens))
	}
	piece := t.tokens[id]
	if b, ok := parseByteToken(piece); ok {
		t.pending = append(t.pending, b)
	} else {
		if t.spaceMarker != "" {
			piece = strings.ReplaceAll(piece, t.spaceMarker, " ")
		}
		t.pending = append(t.pending, piece...)
	}
	return t.drain(false), nil
}

// DecodeRest flushes any bytes held back by DecodeNext and resets the
// stream. Trailing bytes that never completed a character decode as
// the replacement rune.
func (t *Tokenizer) DecodeRest() (string, error) {
	out := t.drain(true)
	t.pending = t.pending[:0]
	return out, nil
}

// drain returns the longest prefix of pending that ends on a rune
// boundary. With flush set it returns everything, substituting the
// replacement character for undecodable bytes.
func (t *Tokenizer) drain(flush bool) string {
	n := 0
	for n < len(t.pending) {
		r, size := utf8.DecodeRune(t.pending[n:])
		if r == utf8.RuneError && size == 1 {
			// Possibly an incomplete sequence waiting for more bytes.
			if !flush && len(t.pending)-n < utf8.UTFMax {
				break
			}
			if !flush {
				// A full-width invalid run: pass it through rather
				// than stall the stream forever.
				n++
				continue
			}
		}
		n += size
	}
	if n == 0 {
		return ""
	}
	out := string(t.pending[:n])
	t.pending = t.pending[n:]
	return strings.ToValidUTF8(out, string(utf8.RuneError))
}

// parseByteToken recognizes the <0xNN> byte-fallback form.
func parseByteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || tok[5] != '>' {
		return 0, false
	}
	hi, ok1 := hexVal(tok[3])
	lo, ok2 := hexVal(tok[4])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
