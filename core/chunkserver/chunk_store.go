package chunkserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	fp "path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// ChunkKeyWidth is the number of digits in a chunk key. Zero padding
	// makes lexicographic key order equal numeric offset order.
	ChunkKeyWidth = 15

	// MaxStreamSize is the first offset a chunk key can not represent.
	MaxStreamSize int64 = 1_000_000_000_000_000

	DefaultArtifactName = "artifact"

	partialSuffix = ".partial"
)

// StoredChunk is a chunk persisted in a session container.
type StoredChunk struct {
	Key    string
	Offset int64
	Size   int64
	Path   string
}

func (c StoredChunk) End() int64 {
	return c.Offset + c.Size
}

// ChunkStore keeps chunks on disk, one directory per session.
type ChunkStore struct {
	root string
}

func NewChunkStore(root string) *ChunkStore {
	return &ChunkStore{root: root}
}

func (s *ChunkStore) Root() string {
	return s.root
}

func GetChunkKey(offset int64) string {
	return fmt.Sprintf("%0*d", ChunkKeyWidth, offset)
}

func isChunkKey(name string) bool {
	if len(name) != ChunkKeyWidth {
		return false
	}

	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func (s *ChunkStore) ContainerPath(sessionID string) string {
	return fp.Join(s.root, sessionID)
}

func (s *ChunkStore) GetChunkPath(sessionID string, offset int64) string {
	return fp.Join(s.ContainerPath(sessionID), GetChunkKey(offset))
}

// ArtifactPath returns where the reassembled artifact of a session lives.
func (s *ChunkStore) ArtifactPath(sessionID, filename string) (string, error) {
	name, err := artifactName(filename)
	if err != nil {
		return "", err
	}

	return fp.Join(s.ContainerPath(sessionID), name), nil
}

func artifactName(filename string) (string, error) {
	if filename == "" {
		return DefaultArtifactName, nil
	}

	name := fp.Base(fp.Clean(filename))
	switch {
	case name == "." || name == ".." || name == string(fp.Separator):
		return "", fmt.Errorf("%w: bad filename %q", ErrInvalidChunk, filename)
	case isChunkKey(name), name == manifestName, name == commitName, strings.HasSuffix(name, partialSuffix):
		return "", fmt.Errorf("%w: reserved filename %q", ErrInvalidChunk, filename)
	}

	return name, nil
}

// EnsureContainer creates the session directory if it does not exist yet.
func (s *ChunkStore) EnsureContainer(sessionID string) error {
	p := s.ContainerPath(sessionID)
	if err := os.MkdirAll(p, 0750); err != nil {
		return storageErr("create container", p, err)
	}

	return nil
}

// CreateContainer creates the session directory and fails with
// ErrSessionConflict if it already exists.
func (s *ChunkStore) CreateContainer(sessionID string) error {
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return storageErr("create root", s.root, err)
	}

	p := s.ContainerPath(sessionID)
	if err := os.Mkdir(p, 0750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: session %s already exists", ErrSessionConflict, sessionID)
		}

		return storageErr("create container", p, err)
	}

	return nil
}

func (s *ChunkStore) HasContainer(sessionID string) bool {
	fi, err := os.Stat(s.ContainerPath(sessionID))
	return err == nil && fi.IsDir()
}

// Put writes a chunk under its zero padded offset key. The data is written
// to a temporary file and renamed so a crash never leaves a torn chunk
// behind. Re-putting an offset with the same size replaces the chunk,
// a different size is a conflict.
func (s *ChunkStore) Put(sessionID string, offset int64, data []byte) error {
	p := s.GetChunkPath(sessionID, offset)

	fi, err := os.Stat(p)
	switch {
	case err == nil && fi.Size() != int64(len(data)):
		return fmt.Errorf("%w: chunk at offset %d already stored with %d bytes", ErrSessionConflict, offset, fi.Size())
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return storageErr("stat chunk", p, err)
	}

	tmp := p + partialSuffix
	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return storageErr("write chunk", tmp, err)
	}

	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return storageErr("rename chunk", p, err)
	}

	return nil
}

func writeFileSync(p string, data []byte) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// List returns the chunks of a session sorted by key.
func (s *ChunkStore) List(sessionID string) ([]StoredChunk, error) {
	dir := s.ContainerPath(sessionID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, storageErr("list container", dir, err)
	}

	chunks := make([]StoredChunk, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isChunkKey(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, storageErr("stat chunk", fp.Join(dir, e.Name()), err)
		}

		offset, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}

		chunks = append(chunks, StoredChunk{
			Key:    e.Name(),
			Offset: offset,
			Size:   info.Size(),
			Path:   fp.Join(dir, e.Name()),
		})
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Key < chunks[j].Key
	})

	return chunks, nil
}

func (s *ChunkStore) Open(c StoredChunk) (io.ReadCloser, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, storageErr("open chunk", c.Path, err)
	}

	return f, nil
}

func (s *ChunkStore) Remove(c StoredChunk) error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("remove chunk", c.Path, err)
	}

	return nil
}

func (s *ChunkStore) RemoveContainer(sessionID string) error {
	p := s.ContainerPath(sessionID)
	if err := os.RemoveAll(p); err != nil {
		return storageErr("remove container", p, err)
	}

	return nil
}

func (s *ChunkStore) isEmpty(sessionID string) bool {
	entries, err := os.ReadDir(s.ContainerPath(sessionID))
	return err == nil && len(entries) == 0
}

// Containers lists session ids that have a container together with the
// last time the container was modified.
func (s *ChunkStore) Containers() (map[string]time.Time, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]time.Time{}, nil
		}

		return nil, storageErr("list root", s.root, err)
	}

	containers := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		containers[e.Name()] = info.ModTime()
	}

	return containers, nil
}
