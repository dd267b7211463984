package planner

import (
	"errors"

	"github.com/pyropy/chunkup/core/model"
)

// DefaultChunkSize is used when the caller does not pick one.
const DefaultChunkSize = 4 << 20

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrNegativeSize     = errors.New("total size must not be negative")
)

// Plan is an ordered, restartable sequence of chunk descriptors covering
// [0, totalSize).
type Plan struct {
	totalSize int64
	chunkSize int64
	next      int
}

// New plans chunks of chunkSize bytes over a source of totalSize bytes. The
// last chunk holds the remainder and is never empty.
func New(totalSize, chunkSize int64) (*Plan, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	if totalSize < 0 {
		return nil, ErrNegativeSize
	}

	return &Plan{
		totalSize: totalSize,
		chunkSize: chunkSize,
	}, nil
}

// Len returns the number of chunks in the plan.
func (p *Plan) Len() int {
	return int((p.totalSize + p.chunkSize - 1) / p.chunkSize)
}

func (p *Plan) TotalSize() int64 {
	return p.totalSize
}

func (p *Plan) ChunkSize() int64 {
	return p.chunkSize
}

// At returns the i-th descriptor.
func (p *Plan) At(i int) (model.ChunkDescriptor, bool) {
	if i < 0 || i >= p.Len() {
		return model.ChunkDescriptor{}, false
	}

	offset := int64(i) * p.chunkSize
	length := p.chunkSize
	if remaining := p.totalSize - offset; remaining < length {
		length = remaining
	}

	return model.ChunkDescriptor{
		Index:   i,
		Offset:  offset,
		Length:  length,
		IsFinal: i == p.Len()-1,
	}, true
}

// Next returns the next descriptor, or false once the plan is exhausted.
func (p *Plan) Next() (model.ChunkDescriptor, bool) {
	c, ok := p.At(p.next)
	if ok {
		p.next++
	}

	return c, ok
}

// Reset rewinds the plan to its first chunk.
func (p *Plan) Reset() {
	p.next = 0
}

// All returns every descriptor without touching the iteration position.
func (p *Plan) All() []model.ChunkDescriptor {
	chunks := make([]model.ChunkDescriptor, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		c, _ := p.At(i)
		chunks = append(chunks, c)
	}

	return chunks
}
