package client

import (
	"io"
	"os"
)

// ByteSource is the data being uploaded. It must be safe to call ReadAt
// from the hashing goroutine while the session is running.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// FileSource is a ByteSource backed by a file on disk.
type FileSource struct {
	*os.File
	size int64
}

func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileSource{File: f, size: fi.Size()}, nil
}

func (f *FileSource) Size() int64 {
	return f.size
}
