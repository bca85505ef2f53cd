package etf

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/b71729/bin"
)

/*
===============================================================================
    TermWriter
===============================================================================
*/

// TermWriter wraps a `bin.Writer` and exports methods to assist in
// encoding terms, i.e. "WriteTerm".
//
// For each value the writer selects the most compact applicable tag; the
// SMALL_ATOM forms are accepted by the reader but never emitted.
type TermWriter struct {
	bw  bin.Writer
	err error
	_1b [1]byte
	_8b [8]byte
}

// NewTermWriter returns a fresh TermWriter set up to emit to `sink`.
func NewTermWriter(sink io.Writer) TermWriter {
	return TermWriter{bw: bin.NewWriter(sink, binary.BigEndian)}
}

// WriteTerm writes the format version byte followed by `term`.
func (tw *TermWriter) WriteTerm(term Term) error {
	if err := tw.writeByte(formatVersion); err != nil {
		return err
	}
	return tw.writeTerm(term)
}

func (tw *TermWriter) writeTerm(term Term) error {
	switch x := term.(type) {
	case Atom:
		return tw.writeAtom(x)
	case FixInteger:
		return tw.writeFixInteger(x.Value)
	case BigInteger:
		return tw.writeBigInteger(x)
	case Float:
		return tw.writeFloat(x)
	case Pid:
		return tw.writePid(x)
	case Port:
		return tw.writePort(x)
	case Reference:
		return tw.writeReference(x)
	case ExternalFun:
		return tw.writeExternalFun(x)
	case OldFun:
		return tw.writeOldFun(x)
	case NewFun:
		return tw.writeNewFun(x)
	case Binary:
		return tw.writeBinary(x)
	case BitBinary:
		return tw.writeBitBinary(x)
	case List:
		return tw.writeList(x)
	case ImproperList:
		return tw.writeImproperList(x)
	case Tuple:
		return tw.writeTuple(x)
	case Map:
		return tw.writeMap(x)
	}
	return CorruptTermError("cannot encode unknown term %s", term)
}

/*
===============================================================================
    Numbers
===============================================================================
*/

// writeFixInteger emits SMALL_INTEGER for values in 0..=255, INTEGER
// otherwise.
func (tw *TermWriter) writeFixInteger(value int32) error {
	if value >= 0 && value <= 0xFF {
		if tw.err = tw.writeByte(tagSmallInteger); tw.err != nil {
			return tw.err
		}
		return tw.writeByte(uint8(value))
	}
	if tw.err = tw.writeByte(tagInteger); tw.err != nil {
		return tw.err
	}
	return tw.bw.WriteUint32(uint32(value))
}

// writeBigInteger emits the magnitude as little-endian bytes behind a
// SMALL_BIG or LARGE_BIG header, whichever fits.
func (tw *TermWriter) writeBigInteger(x BigInteger) error {
	value := x.Value
	if value == nil {
		value = new(big.Int)
	}
	// big.Int produces big-endian magnitude bytes; the wire is little-endian
	magnitude := value.Bytes()
	for i, j := 0, len(magnitude)-1; i < j; i, j = i+1, j-1 {
		magnitude[i], magnitude[j] = magnitude[j], magnitude[i]
	}
	switch {
	case len(magnitude) <= 0xFF:
		if tw.err = tw.writeByte(tagSmallBig); tw.err != nil {
			return tw.err
		}
		if tw.err = tw.writeByte(uint8(len(magnitude))); tw.err != nil {
			return tw.err
		}
	case uint64(len(magnitude)) <= 0xFFFFFFFF:
		if tw.err = tw.writeByte(tagLargeBig); tw.err != nil {
			return tw.err
		}
		if tw.err = tw.bw.WriteUint32(uint32(len(magnitude))); tw.err != nil {
			return tw.err
		}
	default:
		return &TooLargeInteger{Value: value}
	}
	sign := uint8(0)
	if value.Sign() < 0 {
		sign = 1
	}
	if tw.err = tw.writeByte(sign); tw.err != nil {
		return tw.err
	}
	return tw.bw.WriteBytes(magnitude)
}

// writeFloat always emits NEW_FLOAT; the legacy text form is decode-only.
func (tw *TermWriter) writeFloat(x Float) error {
	if tw.err = tw.writeByte(tagNewFloat); tw.err != nil {
		return tw.err
	}
	binary.BigEndian.PutUint64(tw._8b[:], math.Float64bits(x.Value))
	return tw.bw.WriteBytes(tw._8b[:])
}

/*
===============================================================================
    Atoms
===============================================================================
*/

// writeAtom emits ATOM when the name is pure ASCII (where Latin-1 and
// UTF-8 coincide), ATOM_UTF8 otherwise.
func (tw *TermWriter) writeAtom(x Atom) error {
	if len(x.Name) > 0xFFFF {
		return &TooLongAtomName{Atom: x}
	}
	tag := uint8(tagAtom)
	for i := 0; i < len(x.Name); i++ {
		if x.Name[i] >= 0x80 {
			tag = tagAtomUTF8
			break
		}
	}
	if tw.err = tw.writeByte(tag); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint16(uint16(len(x.Name))); tw.err != nil {
		return tw.err
	}
	return tw.bw.WriteBytes([]byte(x.Name))
}

/*
===============================================================================
    Binaries
===============================================================================
*/

func (tw *TermWriter) writeBinary(x Binary) error {
	if tw.err = tw.writeByte(tagBinary); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.Bytes))); tw.err != nil {
		return tw.err
	}
	return tw.bw.WriteBytes(x.Bytes)
}

// writeBitBinary emits the payload with the significant bits of the last
// byte shifted up into the high positions, inverting the reader's shift.
func (tw *TermWriter) writeBitBinary(x BitBinary) error {
	if tw.err = tw.writeByte(tagBitBinary); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.Bytes))); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeByte(x.TailBits); tw.err != nil {
		return tw.err
	}
	if len(x.Bytes) == 0 {
		return nil
	}
	if tw.err = tw.bw.WriteBytes(x.Bytes[:len(x.Bytes)-1]); tw.err != nil {
		return tw.err
	}
	return tw.writeByte(x.Bytes[len(x.Bytes)-1] << (8 - x.TailBits))
}

/*
===============================================================================
    Containers
===============================================================================
*/

// asStringByte reports whether `term` is a FixInteger within 0..=255,
// returning the byte value when so.
func asStringByte(term Term) (uint8, bool) {
	i, ok := term.(FixInteger)
	if !ok || i.Value < 0 || i.Value > 0xFF {
		return 0, false
	}
	return uint8(i.Value), true
}

// writeList emits the most compact of NIL, STRING and LIST:
// an empty list is a bare NIL tag; a non-empty list of up to 65535 byte
// values is a STRING (no trailing nil); everything else is a LIST with a
// nil tail.
func (tw *TermWriter) writeList(x List) error {
	if x.IsNil() {
		return tw.writeByte(tagNil)
	}
	if len(x.Elements) <= 0xFFFF {
		stringable := true
		for _, e := range x.Elements {
			if _, ok := asStringByte(e); !ok {
				stringable = false
				break
			}
		}
		if stringable {
			if tw.err = tw.writeByte(tagString); tw.err != nil {
				return tw.err
			}
			if tw.err = tw.bw.WriteUint16(uint16(len(x.Elements))); tw.err != nil {
				return tw.err
			}
			buf := make([]byte, len(x.Elements))
			for i, e := range x.Elements {
				buf[i], _ = asStringByte(e)
			}
			return tw.bw.WriteBytes(buf)
		}
	}
	if tw.err = tw.writeByte(tagList); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.Elements))); tw.err != nil {
		return tw.err
	}
	for _, e := range x.Elements {
		if tw.err = tw.writeTerm(e); tw.err != nil {
			return tw.err
		}
	}
	return tw.writeByte(tagNil)
}

// writeImproperList emits LIST with the tail term in place of nil.
// A handcrafted improper list with no elements degenerates to its tail.
func (tw *TermWriter) writeImproperList(x ImproperList) error {
	if len(x.Elements) == 0 {
		return tw.writeTerm(x.Last)
	}
	if tw.err = tw.writeByte(tagList); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.Elements))); tw.err != nil {
		return tw.err
	}
	for _, e := range x.Elements {
		if tw.err = tw.writeTerm(e); tw.err != nil {
			return tw.err
		}
	}
	return tw.writeTerm(x.Last)
}

// writeTuple emits SMALL_TUPLE for arities below 256, LARGE_TUPLE
// otherwise.
func (tw *TermWriter) writeTuple(x Tuple) error {
	if len(x.Elements) < 0x100 {
		if tw.err = tw.writeByte(tagSmallTuple); tw.err != nil {
			return tw.err
		}
		if tw.err = tw.writeByte(uint8(len(x.Elements))); tw.err != nil {
			return tw.err
		}
	} else {
		if tw.err = tw.writeByte(tagLargeTuple); tw.err != nil {
			return tw.err
		}
		if tw.err = tw.bw.WriteUint32(uint32(len(x.Elements))); tw.err != nil {
			return tw.err
		}
	}
	for _, e := range x.Elements {
		if tw.err = tw.writeTerm(e); tw.err != nil {
			return tw.err
		}
	}
	return nil
}

// writeMap emits key/value pairs in stored order.
func (tw *TermWriter) writeMap(x Map) error {
	if tw.err = tw.writeByte(tagMap); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.Entries))); tw.err != nil {
		return tw.err
	}
	for _, entry := range x.Entries {
		if tw.err = tw.writeTerm(entry.Key); tw.err != nil {
			return tw.err
		}
		if tw.err = tw.writeTerm(entry.Value); tw.err != nil {
			return tw.err
		}
	}
	return nil
}

/*
===============================================================================
    Identifiers
===============================================================================
*/

func (tw *TermWriter) writePid(x Pid) error {
	if tw.err = tw.writeByte(tagPid); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Node); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(x.ID); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(x.Serial); tw.err != nil {
		return tw.err
	}
	return tw.writeByte(x.Creation)
}

func (tw *TermWriter) writePort(x Port) error {
	if tw.err = tw.writeByte(tagPort); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Node); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(x.ID); tw.err != nil {
		return tw.err
	}
	return tw.writeByte(x.Creation)
}

// writeReference always emits the NEW_REFERENCE form; the legacy
// single-word form is decode-only.
func (tw *TermWriter) writeReference(x Reference) error {
	if len(x.ID) > 0xFFFF {
		return &TooLargeReferenceID{Reference: x}
	}
	if tw.err = tw.writeByte(tagNewReference); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint16(uint16(len(x.ID))); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Node); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeByte(x.Creation); tw.err != nil {
		return tw.err
	}
	for _, id := range x.ID {
		if tw.err = tw.bw.WriteUint32(id); tw.err != nil {
			return tw.err
		}
	}
	return nil
}

/*
===============================================================================
    Funs
===============================================================================
*/

func (tw *TermWriter) writeExternalFun(x ExternalFun) error {
	if tw.err = tw.writeByte(tagExport); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Module); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Function); tw.err != nil {
		return tw.err
	}
	return tw.writeFixInteger(int32(x.Arity))
}

func (tw *TermWriter) writeOldFun(x OldFun) error {
	if tw.err = tw.writeByte(tagFun); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.FreeVars))); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writePid(x.Pid); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Module); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeFixInteger(x.Index); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeFixInteger(x.Uniq); tw.err != nil {
		return tw.err
	}
	for _, v := range x.FreeVars {
		if tw.err = tw.writeTerm(v); tw.err != nil {
			return tw.err
		}
	}
	return nil
}

// writeNewFun stages the fun body in a scratch buffer first: the wire
// carries a leading total size that includes the size field itself.
func (tw *TermWriter) writeNewFun(x NewFun) error {
	if tw.err = tw.writeByte(tagNewFun); tw.err != nil {
		return tw.err
	}
	body := bytes.NewBuffer([]byte{})
	inner := NewTermWriter(body)
	if err := inner.writeNewFunBody(x); err != nil {
		return err
	}
	if tw.err = tw.bw.WriteUint32(uint32(4 + body.Len())); tw.err != nil {
		return tw.err
	}
	return tw.bw.WriteBytes(body.Bytes())
}

func (tw *TermWriter) writeNewFunBody(x NewFun) error {
	if tw.err = tw.writeByte(x.Arity); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteBytes(x.Uniq[:]); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(x.Index); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.bw.WriteUint32(uint32(len(x.FreeVars))); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeAtom(x.Module); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeFixInteger(x.OldIndex); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writeFixInteger(x.OldUniq); tw.err != nil {
		return tw.err
	}
	if tw.err = tw.writePid(x.Pid); tw.err != nil {
		return tw.err
	}
	for _, v := range x.FreeVars {
		if tw.err = tw.writeTerm(v); tw.err != nil {
			return tw.err
		}
	}
	return nil
}

/*
===============================================================================
    Low-Level Writes
===============================================================================
*/

func (tw *TermWriter) writeByte(b uint8) error {
	tw._1b[0] = b
	return tw.bw.WriteBytes(tw._1b[:])
}
