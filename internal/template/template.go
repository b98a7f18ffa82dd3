package template

import (
	"fmt"
	"strings"
	texttemplate "text/template"
)

// Renderer turns an ordered conversation into a single prompt string ending
// with an open assistant turn. The template source usually comes embedded in
// the model file; an empty source selects the plain fallback format.
//
// Three kinds of source are understood:
//   - well-known chat formats recognised by their marker tokens
//     (ChatML, Llama-instruct, Gemma), which covers model-embedded
//     Jinja sources;
//   - Go text/template syntax (explicit overrides), executed with
//     {{.Messages}} in scope;
//   - empty, which produces "role:\ncontent" blocks.
//
// A non-empty source that matches none of these is malformed. Render is a
// pure function of its inputs.
type Renderer struct {
	source string
	tmpl   *texttemplate.Template
	render func([]Message) (string, error)
}

// templateData is the execution context for explicit text/template sources.
type templateData struct {
	Messages []Message
}

// New parses a template source. Empty source selects the fallback format.
func New(source string) (*Renderer, error) {
	r := &Renderer{source: source}

	// Marker probing comes first: model-embedded Jinja sources contain
	// {{ }} expressions but identify their format by literal marker tokens.
	switch {
	case source == "":
		r.render = renderFallback
	case strings.Contains(source, "<|im_start|>"):
		r.render = renderChatML
	case strings.Contains(source, "[INST]"):
		r.render = renderInst
	case strings.Contains(source, "<start_of_turn>"):
		r.render = renderGemma
	case strings.Contains(source, "{{"):
		tmpl, err := texttemplate.New("chat").Option("missingkey=error").Parse(source)
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}
		r.tmpl = tmpl
		r.render = r.renderParsed
	default:
		return nil, fmt.Errorf("unrecognized template format (len %d)", len(source))
	}

	return r, nil
}

// Render produces the prompt text for the given messages.
func (r *Renderer) Render(msgs []Message) (string, error) {
	return r.render(msgs)
}

func (r *Renderer) renderParsed(msgs []Message) (string, error) {
	var b strings.Builder
	if err := r.tmpl.Execute(&b, templateData{Messages: msgs}); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return b.String(), nil
}

// renderFallback emits "role:\ncontent" blocks ending with an open
// assistant marker.
func renderFallback(msgs []Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(":\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant:\n")
	return b.String(), nil
}

func renderChatML(msgs []Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String(), nil
}

func renderInst(msgs []Message) (string, error) {
	var b strings.Builder
	var system string
	rest := msgs
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		system = rest[0].Content
		rest = rest[1:]
	}

	first := true
	for _, m := range rest {
		switch m.Role {
		case RoleUser:
			b.WriteString("[INST] ")
			if first && system != "" {
				b.WriteString(system)
				b.WriteString("\n\n")
			}
			first = false
			b.WriteString(m.Content)
			b.WriteString(" [/INST]")
		case RoleAssistant:
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString("</s>")
		default:
			return "", fmt.Errorf("instruct format: unexpected role %q", m.Role)
		}
	}
	return b.String(), nil
}

func renderGemma(msgs []Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		// Gemma has no system role; system turns fold into the user role.
		role := string(m.Role)
		if m.Role == RoleSystem {
			role = "user"
		} else if m.Role == RoleAssistant {
			role = "model"
		}
		b.WriteString("<start_of_turn>")
		b.WriteString(role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<end_of_turn>\n")
	}
	b.WriteString("<start_of_turn>model\n")
	return b.String(), nil
}
