package template

import (
	"strings"
	"testing"
)

func msgs() []Message {
	return []Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi"},
		{Role: RoleUser, Content: "What is 2+2?"},
	}
}

func TestFallbackFormat(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(msgs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := "system:\nYou are terse.\nuser:\nHello\nassistant:\nHi\nuser:\nWhat is 2+2?\nassistant:\n"
	if out != want {
		t.Errorf("fallback render mismatch:\ngot:  %q\nwant: %q", out, want)
	}
}

func TestFallbackEndsWithOpenAssistantTurn(t *testing.T) {
	r, _ := New("")
	out, _ := r.Render(msgs())
	if !strings.HasSuffix(out, "assistant:\n") {
		t.Errorf("expected open assistant marker at end, got %q", out)
	}
}

func TestChatMLSignature(t *testing.T) {
	r, err := New("<|im_start|>role ... <|im_end|>")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(msgs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasSuffix(out, "<|im_start|>assistant\n") {
		t.Errorf("expected chatml generation prompt, got %q", out)
	}
	if !strings.Contains(out, "<|im_start|>user\nHello<|im_end|>\n") {
		t.Errorf("expected chatml user turn, got %q", out)
	}
}

func TestInstSignature(t *testing.T) {
	r, err := New("[INST] ... [/INST]")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(msgs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "[INST] You are terse.\n\nHello [/INST]") {
		t.Errorf("expected system folded into first user turn, got %q", out)
	}
	if !strings.HasSuffix(out, "[INST] What is 2+2? [/INST]") {
		t.Errorf("expected open instruct turn at end, got %q", out)
	}
}

func TestGemmaSignature(t *testing.T) {
	r, err := New("<start_of_turn>...<end_of_turn>")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(msgs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "<start_of_turn>model\nHi<end_of_turn>\n") {
		t.Errorf("expected assistant mapped to model role, got %q", out)
	}
	if !strings.HasSuffix(out, "<start_of_turn>model\n") {
		t.Errorf("expected open model turn, got %q", out)
	}
}

func TestGoTemplateOverride(t *testing.T) {
	src := "{{range .Messages}}{{.Role}}> {{.Content}}\n{{end}}assistant> "
	r, err := New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(msgs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "user> Hello\n") || !strings.HasSuffix(out, "assistant> ") {
		t.Errorf("unexpected render: %q", out)
	}
}

func TestMalformedTemplateFails(t *testing.T) {
	if _, err := New("{{range .Messages}"); err == nil {
		t.Error("expected parse error for unbalanced template")
	}
	if _, err := New("no known markers here"); err == nil {
		t.Error("expected error for unrecognized template format")
	}
}

func TestMissingFieldFailsAtRender(t *testing.T) {
	r, err := New("{{range .Messages}}{{.Author}}{{end}}")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Render(msgs()); err == nil {
		t.Error("expected error when template references a missing field")
	}
}

func TestRenderIsPure(t *testing.T) {
	r, _ := New("")
	in := msgs()
	a, _ := r.Render(in)
	b, _ := r.Render(in)
	if a != b {
		t.Error("expected identical output for identical input")
	}
}
