package gguf

import (
	"fmt"
	"strings"
)

// Metadata is the subset of GGUF key/value pairs the engine cares
// about, resolved against the architecture-prefixed key scheme
// (e.g. "llama.block_count" for architecture "llama").
type Metadata struct {
	Name            string
	Architecture    string
	Layers          int
	EmbeddingLength int
	Heads           int
	KVHeads         int
	VocabSize       int
	ContextLength   int
	ChatTemplate    string
	BOSTokenID      int
	EOSTokenID      int
	FileSize        int64
	TensorCount     int
	QuantPrimary    string
}

// Extract resolves engine-relevant metadata from a parsed file.
// Architecture is the only required key.
func Extract(f *File) (Metadata, error) {
	arch, ok := f.KV["general.architecture"].(string)
	if !ok || arch == "" {
		return Metadata{}, fmt.Errorf("gguf: missing general.architecture in %s", f.Path)
	}

	md := Metadata{
		Architecture: arch,
		FileSize:     f.FileSize,
		TensorCount:  len(f.Tensors),
	}
	md.Name, _ = f.KV["general.name"].(string)
	md.ChatTemplate, _ = f.KV["tokenizer.chat_template"].(string)

	md.Layers = f.intKV(arch+".block_count", 0)
	md.EmbeddingLength = f.intKV(arch+".embedding_length", 0)
	md.Heads = f.intKV(arch+".attention.head_count", 0)
	md.KVHeads = f.intKV(arch+".attention.head_count_kv", md.Heads)
	md.ContextLength = f.intKV(arch+".context_length", 0)
	md.VocabSize = f.intKV(arch+".vocab_size", 0)
	if md.VocabSize == 0 {
		md.VocabSize = len(f.Vocab())
	}
	md.BOSTokenID = f.intKV("tokenizer.ggml.bos_token_id", -1)
	md.EOSTokenID = f.intKV("tokenizer.ggml.eos_token_id", -1)
	md.QuantPrimary = f.primaryQuant()
	return md, nil
}

// intKV returns the key's value as int, or def when absent or not an
// integer type.
func (f *File) intKV(key string, def int) int {
	v, ok := f.KV[key]
	if !ok {
		return def
	}
	n, ok := toInt64(v)
	if !ok {
		return def
	}
	return int(n)
}

// Vocab returns the token string table, or nil when the file carries
// no embedded tokenizer.
func (f *File) Vocab() []string {
	toks, _ := f.KV["tokenizer.ggml.tokens"].([]string)
	return toks
}

// VocabScores returns per-token merge scores aligned with Vocab.
func (f *File) VocabScores() []float32 {
	scores, _ := f.KV["tokenizer.ggml.scores"].([]float32)
	return scores
}

// primaryQuant reports the most common tensor element type, which is
// what users mean by "the model's quantization".
func (f *File) primaryQuant() string {
	counts := make(map[GGMLType]int)
	for _, t := range f.Tensors {
		counts[t.Type]++
	}
	var best GGMLType
	bestN := 0
	for typ, n := range counts {
		if n > bestN {
			best, bestN = typ, n
		}
	}
	if bestN == 0 {
		return "none"
	}
	return best.String()
}

// Summary renders a human-readable report for the inspect command.
func (md Metadata) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model:        %s\n", orDash(md.Name))
	fmt.Fprintf(&b, "Architecture: %s\n", md.Architecture)
	fmt.Fprintf(&b, "Quantization: %s\n", md.QuantPrimary)
	fmt.Fprintf(&b, "Layers:       %d\n", md.Layers)
	fmt.Fprintf(&b, "Embedding:    %d\n", md.EmbeddingLength)
	fmt.Fprintf(&b, "Heads:        %d (kv: %d)\n", md.Heads, md.KVHeads)
	fmt.Fprintf(&b, "Vocab:        %d\n", md.VocabSize)
	fmt.Fprintf(&b, "Context:      %d\n", md.ContextLength)
	fmt.Fprintf(&b, "Tensors:      %d\n", md.TensorCount)
	fmt.Fprintf(&b, "File size:    %.2f GiB\n", float64(md.FileSize)/(1<<30))
	if md.ChatTemplate != "" {
		fmt.Fprintf(&b, "Chat template: embedded (%d bytes)\n", len(md.ChatTemplate))
	} else {
		b.WriteString("Chat template: none\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
