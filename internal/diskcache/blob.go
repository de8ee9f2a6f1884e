// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package diskcache

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/zeebo/blake3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/markxiv/pkg/types"
)

const blobSuffix = ".md."

var (
	frontOpen  = []byte("---\n")
	frontClose = []byte("\n---\n")
)

// errCorrupt reports a blob whose payload cannot be parsed.
var errCorrupt = errors.New("corrupt cache blob")

// relPath returns the blob location for key relative to the cache root:
// two shard levels from the BLAKE3 hash of the key, then the key with
// slashes replaced (old-style identifiers contain one).
func relPath(key, ext string) string {
	sum := blake3.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:2])
	return path.Join(h[:2], h[2:4], fileName(key)+blobSuffix+ext)
}

// fileName maps a canonical key to a file name. arXiv identifiers never
// contain '_', so the mapping is reversible.
func fileName(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

// keyFromRelPath reverses relPath. It reports false for paths that relPath
// could not have produced.
func keyFromRelPath(rel string) (string, bool) {
	base := path.Base(rel)
	i := strings.LastIndex(base, blobSuffix)
	if i <= 0 {
		return "", false
	}
	key := strings.ReplaceAll(base[:i], "_", "/")
	ext := base[i+len(blobSuffix):]
	if _, ok := codecs[ext]; !ok || relPath(key, ext) != rel {
		return "", false
	}
	return key, true
}

// marshalPayload renders an artifact as YAML front matter followed by
// the body.
func marshalPayload(a *types.Artifact) ([]byte, error) {
	front, err := yaml.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(front) + len(a.Body) + 8)
	buf.Write(frontOpen)
	buf.Write(front)
	buf.WriteString("---\n")
	buf.WriteString(a.Body)
	return buf.Bytes(), nil
}

func unmarshalPayload(data []byte) (*types.Artifact, error) {
	if !bytes.HasPrefix(data, frontOpen) {
		return nil, errCorrupt
	}
	rest := data[len(frontOpen)-1:]
	i := bytes.Index(rest, frontClose)
	if i < 0 {
		return nil, errCorrupt
	}
	var a types.Artifact
	if err := yaml.Unmarshal(rest[:i+1], &a); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	a.Body = string(rest[i+len(frontClose):])
	return &a, nil
}
