package chunkserver

import (
	"errors"
	"io/fs"
	"os"
	fp "path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	manifestName = "manifest.cbor"
	commitName   = "commit.cbor"
)

// Manifest records the whole stream claims carried by a final chunk that
// arrived before all of its predecessors.
type Manifest struct {
	TotalSize       int64  `cbor:"total_size"`
	WholeStreamHash string `cbor:"whole_stream_hash"`
	Filename        string `cbor:"filename,omitempty"`
}

// CommitRecord marks a session whose artifact was reassembled and verified.
// It outlives the in-memory cache of committed sessions and server restarts.
type CommitRecord struct {
	TotalSize   int64     `cbor:"total_size"`
	Hash        string    `cbor:"hash"`
	Filename    string    `cbor:"filename,omitempty"`
	CommittedAt time.Time `cbor:"committed_at"`
}

func (s *ChunkStore) manifestPath(sessionID string) string {
	return fp.Join(s.ContainerPath(sessionID), manifestName)
}

func (s *ChunkStore) commitPath(sessionID string) string {
	return fp.Join(s.ContainerPath(sessionID), commitName)
}

// WriteManifest persists m for the session.
func (s *ChunkStore) WriteManifest(sessionID string, m Manifest) error {
	return writeCBOR("manifest", s.manifestPath(sessionID), m)
}

// ReadManifest returns the stored manifest, or nil if there is none.
func (s *ChunkStore) ReadManifest(sessionID string) (*Manifest, error) {
	var m Manifest
	found, err := readCBOR("manifest", s.manifestPath(sessionID), &m)
	if err != nil || !found {
		return nil, err
	}

	return &m, nil
}

func (s *ChunkStore) RemoveManifest(sessionID string) error {
	p := s.manifestPath(sessionID)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("remove manifest", p, err)
	}

	return nil
}

// WriteCommit marks the session as committed.
func (s *ChunkStore) WriteCommit(sessionID string, r CommitRecord) error {
	return writeCBOR("commit record", s.commitPath(sessionID), r)
}

// ReadCommit returns the commit record of the session, or nil if the
// session was never committed.
func (s *ChunkStore) ReadCommit(sessionID string) (*CommitRecord, error) {
	var r CommitRecord
	found, err := readCBOR("commit record", s.commitPath(sessionID), &r)
	if err != nil || !found {
		return nil, err
	}

	return &r, nil
}

func writeCBOR(what, p string, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}

	tmp := p + partialSuffix
	if err := writeFileSync(tmp, b); err != nil {
		_ = os.Remove(tmp)
		return storageErr("write "+what, tmp, err)
	}

	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return storageErr("rename "+what, p, err)
	}

	return nil
}

func readCBOR(what, p string, v any) (bool, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, storageErr("read "+what, p, err)
	}

	if err := cbor.Unmarshal(b, v); err != nil {
		return false, storageErr("decode "+what, p, err)
	}

	return true, nil
}
