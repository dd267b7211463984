package checksum

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{"abc", []byte("abc"), "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"abcdef", []byte("abcdef"), "1f8ac10f23c5b5bc1167bda84b833e5c057a77d2"},
		{"1500 x A", bytes.Repeat([]byte("A"), 1500), "a7f644d4a5b863037da8cadd2e69640ef3dc804e"},
		{
			"two block message",
			[]byte("abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq"),
			"84983e441c3bd26ebaae4aa1f95129e5e54670f1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SumHex(tt.input))

			h := New()
			require.NoError(t, h.Feed(tt.input))
			assert.Equal(t, tt.want, h.FinalizeHex())
		})
	}
}

// Lengths around the padding boundaries: 55 leaves room for the length
// words, 56..63 force a second block, 64 is a complete block.
func TestPaddingBoundaries(t *testing.T) {
	for n := 0; n <= 130; n++ {
		data := bytes.Repeat([]byte{byte(n)}, n)
		want := sha1.Sum(data)

		got := Sum(data)
		require.Equal(t, want, got, "length %d", n)
	}
}

func TestIncrementalMatchesOneShot(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		data := make([]byte, rng.Intn(5000))
		rng.Read(data)
		want := sha1.Sum(data)

		h := New()
		rest := data
		for len(rest) > 0 {
			n := rng.Intn(len(rest)) + 1
			if rng.Intn(4) == 0 {
				require.NoError(t, h.Feed(nil))
			}
			require.NoError(t, h.Feed(rest[:n]))
			rest = rest[n:]
		}

		assert.Equal(t, uint64(len(data)), h.Len())
		assert.Equal(t, want, h.Finalize(), "iteration %d, length %d", i, len(data))
	}
}

func TestByteAtATime(t *testing.T) {
	data := bytes.Repeat([]byte("A"), 1500)

	h := New()
	for i := range data {
		require.NoError(t, h.Feed(data[i:i+1]))
	}

	assert.Equal(t, "a7f644d4a5b863037da8cadd2e69640ef3dc804e", h.FinalizeHex())
}

func TestRawAndHexAgree(t *testing.T) {
	h := New()
	require.NoError(t, h.Feed([]byte("abcdef")))

	raw := h.Finalize()
	assert.Equal(t, hex.EncodeToString(raw[:]), h.FinalizeHex())
}

func TestFeedAfterFinalize(t *testing.T) {
	h := New()
	require.NoError(t, h.Feed([]byte("abc")))
	first := h.FinalizeHex()

	assert.ErrorIs(t, h.Feed([]byte("d")), ErrInvalidState)
	assert.ErrorIs(t, h.Feed(nil), ErrInvalidState)

	n, err := h.Write([]byte("d"))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, n)

	assert.True(t, h.Finalized())
	assert.Equal(t, first, h.FinalizeHex())
}

func TestSumReader(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 10_000)

	sum, n, err := SumReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, SumHex(data), sum)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("1F8AC10F23C5B5BC1167BDA84B833E5C057A77D2", "1f8ac10f23c5b5bc1167bda84b833e5c057a77d2"))
	assert.False(t, Equal("1f8ac10f", "1f8ac10f"))
	assert.False(t, Equal(SumHex([]byte("a")), SumHex([]byte("b"))))
}
