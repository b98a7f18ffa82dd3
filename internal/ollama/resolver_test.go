package ollama

import (
	"os"
	"path/filepath"
	"testing"
)

// seedStore lays out a fake Ollama model store and returns its root.
func seedStore(t *testing.T, name, tag, manifestBody string, withBlob bool) string {
	t.Helper()
	root := t.TempDir()
	manifestDir := filepath.Join(root, "manifests", "registry.ollama.ai", "library", name)
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, tag), []byte(manifestBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if withBlob {
		blobDir := filepath.Join(root, "blobs")
		if err := os.MkdirAll(blobDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(blobDir, "sha256-abc123"), []byte("gguf"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

const goodManifest = `{
  "schemaVersion": 2,
  "layers": [
    {"mediaType": "application/vnd.ollama.image.template", "digest": "sha256:fff", "size": 10},
    {"mediaType": "application/vnd.ollama.image.model", "digest": "sha256:abc123", "size": 100}
  ]
}`

func TestResolveFindsModelBlob(t *testing.T) {
	root := seedStore(t, "qwen2.5", "0.5b", goodManifest, true)
	t.Setenv("OLLAMA_MODELS", root)

	path, err := Resolve("qwen2.5:0.5b")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "blobs", "sha256-abc123")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestResolveDefaultsToLatestTag(t *testing.T) {
	root := seedStore(t, "tinymodel", "latest", goodManifest, true)
	t.Setenv("OLLAMA_MODELS", root)

	if _, err := Resolve("tinymodel"); err != nil {
		t.Fatal(err)
	}
}

func TestResolveMissingManifest(t *testing.T) {
	t.Setenv("OLLAMA_MODELS", t.TempDir())
	if _, err := Resolve("ghost:latest"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestResolveNoModelLayer(t *testing.T) {
	body := `{"schemaVersion": 2, "layers": [{"mediaType": "application/vnd.ollama.image.template", "digest": "sha256:fff", "size": 1}]}`
	root := seedStore(t, "broken", "latest", body, false)
	t.Setenv("OLLAMA_MODELS", root)

	if _, err := Resolve("broken"); err == nil {
		t.Fatal("expected error for manifest without model layer")
	}
}

func TestResolveMissingBlob(t *testing.T) {
	root := seedStore(t, "noblob", "latest", goodManifest, false)
	t.Setenv("OLLAMA_MODELS", root)

	if _, err := Resolve("noblob"); err == nil {
		t.Fatal("expected error for missing blob")
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in                            string
		registry, namespace, model, tag string
	}{
		{"llama3", "registry.ollama.ai", "library", "llama3", "latest"},
		{"llama3:8b", "registry.ollama.ai", "library", "llama3", "8b"},
		{"me/custom:dev", "registry.ollama.ai", "me", "custom", "dev"},
		{"hub.example.com/team/model:v2", "hub.example.com", "team", "model", "v2"},
	}
	for _, tc := range tests {
		reg, ns, model, tag := splitName(tc.in)
		if reg != tc.registry || ns != tc.namespace || model != tc.model || tag != tc.tag {
			t.Errorf("splitName(%q) = %q %q %q %q", tc.in, reg, ns, model, tag)
		}
	}
}

func TestIsModelName(t *testing.T) {
	if IsModelName("model.gguf") {
		t.Error("gguf path classified as model name")
	}
	if !IsModelName("qwen2.5:0.5b") {
		t.Error("tagged name not classified as model name")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "weights")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if IsModelName(file) {
		t.Error("existing path classified as model name")
	}
}
