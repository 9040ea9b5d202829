// Package sample handles ingestion of binary samples: reading content,
// computing the content-hash identity, and discovering executable files
// under a directory tree.
package sample

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Sample is an immutable byte sequence plus metadata. Identity is the
// sha256 of the content; the declared name is a hint only.
type Sample struct {
	Name    string
	Size    int64
	Hash    string
	path    string
	content []byte
}

// FromFile ingests a sample from disk.
func FromFile(path string) (*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample %s: %w", path, err)
	}
	s := fromBytes(data, filepath.Base(path))
	s.path = path
	return s, nil
}

// FromBytes ingests an in-memory sample. name is a declared-filename hint
// and may be empty.
func FromBytes(data []byte, name string) *Sample {
	return fromBytes(data, name)
}

func fromBytes(data []byte, name string) *Sample {
	sum := sha256.Sum256(data)
	return &Sample{
		Name:    name,
		Size:    int64(len(data)),
		Hash:    hex.EncodeToString(sum[:]),
		content: data,
	}
}

// Content returns the sample bytes. Callers must not modify the slice.
func (s *Sample) Content() []byte {
	return s.content
}

// Path returns the on-disk location of the sample, or "" for in-memory
// samples. Engines that need a file path call MaterializedPath instead.
func (s *Sample) Path() string {
	return s.path
}

// MaterializedPath returns a path the engine subprocess can open. In-memory
// samples are written to a temp file; the returned cleanup must be called
// once the engine is done. For on-disk samples cleanup is a no-op.
func (s *Sample) MaterializedPath() (path string, cleanup func(), err error) {
	if s.path != "" {
		return s.path, func() {}, nil
	}
	f, err := os.CreateTemp("", "prp-sample-*")
	if err != nil {
		return "", nil, fmt.Errorf("materializing sample: %w", err)
	}
	if _, err := f.Write(s.content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("materializing sample: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("materializing sample: %w", err)
	}
	name := f.Name()
	return name, func() { _ = os.Remove(name) }, nil
}
