package oxide

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theawakener0/oxide/internal/gguf"
	"github.com/theawakener0/oxide/internal/template"
)

// echoBackend favors a fixed token sequence then end-of-sequence.
type echoBackend struct {
	steps   []int
	decoded int
}

func (b *echoBackend) Forward(_ context.Context, tokens []int, pos int) ([]float32, error) {
	if len(tokens) == 1 && pos > 0 {
		b.decoded++
	}
	favored := b.EOSTokenID()
	if b.decoded < len(b.steps) {
		favored = b.steps[b.decoded]
	}
	logits := make([]float32, 300)
	for i := range logits {
		logits[i] = -4
	}
	logits[favored] = 9
	return logits, nil
}

func (b *echoBackend) VocabSize() int  { return 300 }
func (b *echoBackend) EOSTokenID() int { return 1 }
func (b *echoBackend) Reset()          { b.decoded = 0 }

type mapTokenizer struct{ table map[int]string }

func (t *mapTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (t *mapTokenizer) DecodeNext(id int) (string, error) { return t.table[id], nil }
func (t *mapTokenizer) DecodeRest() (string, error)       { return "", nil }

func testSession(t *testing.T, steps ...int) *Session {
	t.Helper()
	r, err := template.New("")
	if err != nil {
		t.Fatal(err)
	}
	md := gguf.Metadata{Name: "stub", Architecture: "llama", ContextLength: 4096}
	tok := &mapTokenizer{table: map[int]string{2: "ok", 3: "!"}}
	opts := DefaultOptions()
	opts.Temperature = 0
	return newSession("stub.gguf", md, &echoBackend{steps: steps}, tok, r, nil, opts)
}

func TestSessionGenerate(t *testing.T) {
	s := testSession(t, 2, 3)
	defer s.Close()

	text, err := s.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if text != "ok!" {
		t.Errorf("text = %q", text)
	}
	msgs := s.History()
	if len(msgs) != 2 || msgs[1].Content != "ok!" {
		t.Errorf("history = %+v", msgs)
	}
	if s.ContextUsed() == 0 || s.ContextLimit() != 4096 {
		t.Errorf("context %d/%d", s.ContextUsed(), s.ContextLimit())
	}
}

func TestSessionStreamMatchesGenerate(t *testing.T) {
	direct := testSession(t, 2, 3, 2)
	defer direct.Close()
	want, err := direct.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}

	streamed := testSession(t, 2, 3, 2)
	defer streamed.Close()
	var sb strings.Builder
	got, err := streamed.GenerateStream(context.Background(), "prompt", func(ev StreamEvent) {
		if ev.Kind == EventToken {
			sb.WriteString(ev.Fragment)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != want || sb.String() != want {
		t.Errorf("stream %q / fragments %q, want %q", got, sb.String(), want)
	}
}

func TestSessionGenerateBatch(t *testing.T) {
	s := testSession(t, 2, 3)
	defer s.Close()

	out, err := s.GenerateBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d responses, want 3", len(out))
	}
	// Each prompt starts from a cleared conversation, so the scripted
	// backend replays the same completion every time.
	for i, text := range out {
		if text != "ok!" {
			t.Errorf("response %d = %q, want %q", i, text, "ok!")
		}
	}
	msgs := s.History()
	if len(msgs) != 2 || msgs[0].Content != "three" {
		t.Errorf("history after batch = %+v, want only the last exchange", msgs)
	}
}

func TestSessionClearHistory(t *testing.T) {
	s := testSession(t, 2)
	defer s.Close()
	if _, err := s.Generate(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	s.ClearHistory()
	if len(s.History()) != 0 {
		t.Error("history survived clear")
	}
	if s.ContextUsed() != 0 {
		t.Errorf("context used = %d after clear", s.ContextUsed())
	}
}

func TestSessionRestoreHistory(t *testing.T) {
	s := testSession(t, 2)
	defer s.Close()
	s.RestoreHistory([]Message{
		{Role: template.RoleUser, Content: "earlier"},
		{Role: template.RoleAssistant, Content: "answer"},
	})
	msgs := s.History()
	if len(msgs) != 2 || msgs[0].Content != "earlier" {
		t.Errorf("restored = %+v", msgs)
	}
}

func TestSessionMetadata(t *testing.T) {
	s := testSession(t)
	defer s.Close()
	if s.Metadata().Architecture != "llama" || s.ModelRef() != "stub.gguf" {
		t.Errorf("metadata = %+v ref %q", s.Metadata(), s.ModelRef())
	}
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(context.Background(), Config{
		ModelRef:    filepath.Join(t.TempDir(), "missing.gguf"),
		BackendAddr: "localhost:0",
	})
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
}

func TestOneShotGenerateRejectsMissingModel(t *testing.T) {
	_, err := Generate(context.Background(), Config{
		ModelRef:    filepath.Join(t.TempDir(), "missing.gguf"),
		BackendAddr: "localhost:0",
	}, "hi")
	if err == nil {
		t.Fatal("expected error")
	}
}
