package etf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
)

/*
===============================================================================
    Envelope
===============================================================================
*/

// Decode reads the format version byte and exactly one term from `source`.
//
// A compressed envelope (tag 80) is inflated transparently. The reader is
// owned for the duration of the call; concurrent decodes require separate
// sources.
func Decode(source io.Reader) (Term, error) {
	tr := NewTermReader(source)
	var term Term
	if err := tr.ReadTerm(&term); err != nil {
		return nil, err
	}
	return term, nil
}

// DecodeFromBytes decodes one term from an in-memory byte slice.
func DecodeFromBytes(source []byte) (Term, error) {
	return Decode(bytes.NewReader(source))
}

// Encode writes the format version byte followed by `term` to `sink`.
// The output is never compressed; see EncodeCompressed for the optional
// compressed envelope.
func Encode(sink io.Writer, term Term) error {
	tw := NewTermWriter(sink)
	return tw.WriteTerm(term)
}

// EncodeToBytes encodes one term into a fresh byte slice.
func EncodeToBytes(term Term) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	if err := Encode(buf, term); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCompressed writes `term` inside the compressed envelope: version
// byte, compressed tag, the uncompressed body size, then the deflated
// body. The deflate level is taken from `Config.CompressionLevel`.
func EncodeCompressed(sink io.Writer, term Term) error {
	body := bytes.NewBuffer([]byte{})
	tw := NewTermWriter(body)
	if err := tw.writeTerm(term); err != nil {
		return err
	}

	var header [6]byte
	header[0] = formatVersion
	header[1] = tagCompressed
	binary.BigEndian.PutUint32(header[2:], uint32(body.Len()))
	if _, err := sink.Write(header[:]); err != nil {
		return err
	}

	deflater, err := zlib.NewWriterLevel(sink, GetConfig().CompressionLevel)
	if err != nil {
		return err
	}
	log.Debugf("deflating %d byte body", body.Len())
	if _, err := deflater.Write(body.Bytes()); err != nil {
		return err
	}
	return deflater.Close()
}
