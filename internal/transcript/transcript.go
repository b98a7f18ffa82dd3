// Package transcript saves and restores conversations as JSON, for
// the chat REPL's /save command and for resuming sessions.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/theawakener0/oxide/internal/template"
)

// Transcript is one saved conversation.
type Transcript struct {
	Model    string             `json:"model,omitempty"`
	SavedAt  time.Time          `json:"saved_at"`
	Messages []template.Message `json:"messages"`
}

// Save writes the conversation to path, creating parent directories.
func Save(path, model string, msgs []template.Message) error {
	tr := Transcript{
		Model:    model,
		SavedAt:  time.Now().UTC(),
		Messages: msgs,
	}
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("transcript: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("transcript: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("transcript: write %s: %w", path, err)
	}
	return nil
}

// Load reads a previously saved conversation.
func Load(path string) (Transcript, error) {
	var tr Transcript
	data, err := os.ReadFile(path)
	if err != nil {
		return tr, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &tr); err != nil {
		return tr, fmt.Errorf("transcript: parse %s: %w", path, err)
	}
	for i, m := range tr.Messages {
		switch m.Role {
		case template.RoleSystem, template.RoleUser, template.RoleAssistant:
		default:
			return tr, fmt.Errorf("transcript: message %d has unknown role %q", i, m.Role)
		}
	}
	return tr, nil
}
