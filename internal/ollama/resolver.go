// Package ollama resolves model names against a local Ollama store,
// so "qwen2.5:0.5b" finds the same GGUF blob Ollama would load.
package ollama

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

const (
	defaultRegistry  = "registry.ollama.ai"
	defaultNamespace = "library"
	defaultTag       = "latest"

	mediaTypeModel = "application/vnd.ollama.image.model"
)

type manifest struct {
	SchemaVersion int     `json:"schemaVersion"`
	Layers        []layer `json:"layers"`
}

type layer struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// ModelsDir returns the Ollama model store, honoring $OLLAMA_MODELS.
func ModelsDir() (string, error) {
	if env := os.Getenv("OLLAMA_MODELS"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ollama", "models"), nil
}

// IsModelName reports whether ref looks like an Ollama model name
// rather than a filesystem path.
func IsModelName(ref string) bool {
	if strings.HasSuffix(ref, ".gguf") {
		return false
	}
	if strings.ContainsAny(ref, "/\\") {
		// Paths and registry refs both contain slashes; a ref that
		// exists on disk is a path.
		if _, err := os.Stat(ref); err == nil {
			return false
		}
	}
	return true
}

// Resolve maps a model name to its GGUF blob path. Accepted forms:
// "name", "name:tag", "namespace/name:tag", and
// "registry/namespace/name:tag".
func Resolve(name string) (string, error) {
	registry, namespace, model, tag := splitName(name)

	base, err := ModelsDir()
	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(base, "manifests", registry, namespace, model, tag)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("ollama: model %q not found (no manifest at %s)", name, manifestPath)
		}
		return "", fmt.Errorf("ollama: read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("ollama: parse manifest for %q: %w", name, err)
	}

	digest := ""
	for _, l := range m.Layers {
		if l.MediaType == mediaTypeModel {
			digest = l.Digest
			break
		}
	}
	if digest == "" {
		return "", fmt.Errorf("ollama: manifest for %q has no model layer", name)
	}

	// Digest "sha256:<hash>" is stored as blobs/sha256-<hash>.
	blobPath := filepath.Join(base, "blobs", strings.Replace(digest, ":", "-", 1))
	if _, err := os.Stat(blobPath); err != nil {
		return "", fmt.Errorf("ollama: blob for %q missing at %s", name, blobPath)
	}
	return blobPath, nil
}

// splitName parses the optional registry/namespace prefix and tag.
func splitName(name string) (registry, namespace, model, tag string) {
	registry, namespace, tag = defaultRegistry, defaultNamespace, defaultTag

	if i := strings.LastIndex(name, ":"); i >= 0 {
		tag = name[i+1:]
		name = name[:i]
	}

	switch parts := strings.Split(name, "/"); len(parts) {
	case 1:
		model = parts[0]
	case 2:
		namespace, model = parts[0], parts[1]
	default:
		registry = parts[0]
		namespace = parts[1]
		model = strings.Join(parts[2:], "/")
	}
	return registry, namespace, model, tag
}
