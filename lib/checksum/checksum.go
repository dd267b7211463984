package checksum

import (
	"encoding/hex"
	"io"
	"strings"
)

// Sum returns the digest of data.
func Sum(data []byte) [Size]byte {
	d := New()
	_ = d.Feed(data)

	return d.Finalize()
}

// SumHex returns the hex encoded digest of data.
func SumHex(data []byte) string {
	sum := Sum(data)
	return hex.EncodeToString(sum[:])
}

// SumReader streams r through a fresh hasher and returns the hex digest
// together with the number of bytes read.
func SumReader(r io.Reader) (string, int64, error) {
	d := New()
	n, err := io.Copy(d, r)
	if err != nil {
		return "", n, err
	}

	return d.FinalizeHex(), n, nil
}

// Equal compares two hex digests ignoring case.
func Equal(a, b string) bool {
	return len(a) == HexSize && strings.EqualFold(a, b)
}
