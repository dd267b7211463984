package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSizes(t *testing.T) {
	tests := []struct {
		total, chunk int64
		lengths      []int64
	}{
		{0, 10, []int64{}},
		{1, 10, []int64{1}},
		{10, 10, []int64{10}},
		{11, 10, []int64{10, 1}},
		{30, 10, []int64{10, 10, 10}},
		{250_000, 100_000, []int64{100_000, 100_000, 50_000}},
	}

	for _, tt := range tests {
		p, err := New(tt.total, tt.chunk)
		require.NoError(t, err)

		lengths := []int64{}
		for _, c := range p.All() {
			lengths = append(lengths, c.Length)
		}

		assert.Equal(t, tt.lengths, lengths, "total %d chunk %d", tt.total, tt.chunk)
		assert.Equal(t, len(tt.lengths), p.Len())
	}
}

func TestPlanCoversRange(t *testing.T) {
	for total := int64(1); total <= 200; total++ {
		for chunk := int64(1); chunk <= 70; chunk += 3 {
			p, err := New(total, chunk)
			require.NoError(t, err)

			var next int64
			finals := 0
			for c, ok := p.Next(); ok; c, ok = p.Next() {
				require.Equal(t, next, c.Offset)
				require.Positive(t, c.Length)
				require.LessOrEqual(t, c.Length, chunk)
				if c.IsFinal {
					finals++
				}
				next = c.End()
			}

			require.Equal(t, total, next)
			require.Equal(t, 1, finals)
		}
	}
}

func TestPlanRestart(t *testing.T) {
	p, err := New(25, 10)
	require.NoError(t, err)

	first := []int64{}
	for c, ok := p.Next(); ok; c, ok = p.Next() {
		first = append(first, c.Offset)
	}

	_, ok := p.Next()
	assert.False(t, ok)

	p.Reset()
	second := []int64{}
	for c, ok := p.Next(); ok; c, ok = p.Next() {
		second = append(second, c.Offset)
	}

	assert.Equal(t, []int64{0, 10, 20}, first)
	assert.Equal(t, first, second)
}

func TestPlanInvalid(t *testing.T) {
	_, err := New(10, 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(10, -1)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(-1, 10)
	assert.ErrorIs(t, err, ErrNegativeSize)
}
