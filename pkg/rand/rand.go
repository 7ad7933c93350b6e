// Package rand produces reproducible pseudorandom bytes from a seed.
package rand

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"
)

// NewSource returns a reader over the chacha20 keystream for seed.
// Equal seeds yield equal streams.
func NewSource(seed uint64) io.Reader {
	var key [chacha20.KeySize]byte
	for i := 0; i < len(key); i += 8 {
		binary.LittleEndian.PutUint64(key[i:], seed)
		seed = seed*6364136223846793005 + 1442695040888963407
	}
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		panic(err)
	}
	return &source{c: c}
}

type source struct {
	c *chacha20.Cipher
}

func (s *source) Read(p []byte) (int, error) {
	clear(p)
	s.c.XORKeyStream(p, p)
	return len(p), nil
}

// Fill overwrites b with the stream for seed.
func Fill(seed uint64, b []byte) {
	_, _ = io.ReadFull(NewSource(seed), b)
}
