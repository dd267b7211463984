package model

// ChunkDescriptor describes one contiguous range of the source.
type ChunkDescriptor struct {
	Index   int
	Offset  int64
	Length  int64
	IsFinal bool
}

// End returns the offset one past the last byte of the chunk.
func (c ChunkDescriptor) End() int64 {
	return c.Offset + c.Length
}
