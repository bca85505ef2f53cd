package fuzz

import (
	"bytes"

	"github.com/b71729/etf"
)

// Fuzz is ran by go-fuzz
func Fuzz(data []byte) int {
	term, err := etf.DecodeFromBytes(data)
	if err != nil {
		// truncated or malformed inputs are expected to be rejected
		return 0
	}

	// a decoded term must survive re-encoding:
	encoded, err := etf.EncodeToBytes(term)
	if err != nil {
		panic("decoded term failed to re-encode: " + err.Error())
	}
	reDecoded, err := etf.DecodeFromBytes(encoded)
	if err != nil {
		panic("re-encoded term failed to decode: " + err.Error())
	}
	reEncoded, err := etf.EncodeToBytes(reDecoded)
	if err != nil {
		panic("re-decoded term failed to encode: " + err.Error())
	}
	if !bytes.Equal(encoded, reEncoded) {
		panic("encoding is not byte idempotent")
	}
	return 1
}
