package checksum

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

const (
	// Size is the length of a digest in bytes.
	Size = 20
	// BlockSize is the number of bytes consumed by one compression round.
	BlockSize = 64
	// HexSize is the length of a hex encoded digest.
	HexSize = 2 * Size

	init0 = 0x67452301
	init1 = 0xEFCDAB89
	init2 = 0x98BADCFE
	init3 = 0x10325476
	init4 = 0xC3D2E1F0
)

var (
	ErrInvalidState = errors.New("hasher already finalized")
)

// Hasher computes a SHA-1 digest over data fed to it in arbitrary sized
// pieces. Feeding the same bytes in any partition yields the same digest.
//
// A Hasher is not safe for concurrent use.
type Hasher struct {
	h      [5]uint32
	buf    [BlockSize]byte
	nbuf   int
	length uint64

	finalized bool
	digest    [Size]byte
}

func New() *Hasher {
	return &Hasher{
		h: [5]uint32{init0, init1, init2, init3, init4},
	}
}

// Feed appends p to the stream. Every block completed by p is compressed
// right away, at most BlockSize-1 bytes stay buffered.
func (d *Hasher) Feed(p []byte) error {
	if d.finalized {
		return ErrInvalidState
	}

	if len(p) == 0 {
		return nil
	}

	d.length += uint64(len(p))

	if d.nbuf > 0 {
		n := copy(d.buf[d.nbuf:], p)
		d.nbuf += n
		p = p[n:]

		if d.nbuf < BlockSize {
			return nil
		}

		block(&d.h, d.buf[:])
		d.nbuf = 0
	}

	for len(p) >= BlockSize {
		block(&d.h, p[:BlockSize])
		p = p[BlockSize:]
	}

	d.nbuf = copy(d.buf[:], p)

	return nil
}

// Write implements io.Writer on top of Feed.
func (d *Hasher) Write(p []byte) (int, error) {
	if err := d.Feed(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Len returns the number of bytes fed so far.
func (d *Hasher) Len() uint64 {
	return d.length
}

// Finalized reports whether Finalize has been called.
func (d *Hasher) Finalized() bool {
	return d.finalized
}

// Finalize pads the stream and returns the digest. The first call locks
// the hasher against further feeding, later calls return the same digest.
func (d *Hasher) Finalize() [Size]byte {
	if d.finalized {
		return d.digest
	}

	var tail [BlockSize]byte
	copy(tail[:], d.buf[:d.nbuf])
	tail[d.nbuf] = 0x80

	// The bit length takes the last 8 bytes. When the 0x80 marker leaves no
	// room for it, the current block is emitted zero padded and the length
	// goes into a fresh block.
	if d.nbuf+1 > BlockSize-8 {
		block(&d.h, tail[:])
		tail = [BlockSize]byte{}
	}

	binary.BigEndian.PutUint64(tail[BlockSize-8:], d.length<<3)
	block(&d.h, tail[:])

	for i, v := range d.h {
		binary.BigEndian.PutUint32(d.digest[i*4:], v)
	}

	d.finalized = true
	d.nbuf = 0
	d.buf = [BlockSize]byte{}

	return d.digest
}

// FinalizeHex is Finalize rendered as 40 lowercase hex characters.
func (d *Hasher) FinalizeHex() string {
	sum := d.Finalize()
	return hex.EncodeToString(sum[:])
}
