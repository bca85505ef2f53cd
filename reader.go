package etf

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/b71729/bin"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

/*
===============================================================================
    TermReader
===============================================================================
*/

// tmpBuffers provides an assortment of temporary variables used internally
// to reduce allocation overhead.
//
// These variables are **not** safe for concurrent use; a TermReader owns
// its source exclusively for the duration of a call.
type tmpBuffers struct {
	err  error
	ui16 uint16
	ui32 uint32
	_1b  [1]byte
	_8b  [8]byte
	_16b [16]byte
}

// TermReader wraps a `bin.Reader` and exports methods to assist in
// decoding terms, i.e. "ReadTerm".
type TermReader struct {
	br bin.Reader

	// scratch holds variable-length payloads (atom names, integer
	// magnitudes) between read and conversion.
	scratch []byte

	// latin1 converts ATOM / SMALL_ATOM payloads; lazy instantiation
	latin1 *encoding.Decoder

	tmpBuffers
}

// NewTermReader returns a fresh TermReader set up to use `source`
// for its data.
func NewTermReader(source io.Reader) TermReader {
	return TermReader{br: bin.NewReader(source, binary.BigEndian)}
}

// ReadTerm attempts to completely read one term into `dst`.
//
// The stream must open with the format version byte, optionally followed
// by the compressed envelope.
func (tr *TermReader) ReadTerm(dst *Term) error {
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	if tr._1b[0] != formatVersion {
		return &UnsupportedVersion{Version: tr._1b[0]}
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	switch tr._1b[0] {
	case tagCompressed:
		return tr.readCompressed(dst)
	case tagDistributionHeader:
		return CorruptTermError("distribution header is not supported")
	}
	return tr.readTermWithTag(tr._1b[0], dst)
}

// readCompressed inflates the remainder of the stream and decodes a single
// term from it. The uncompressed size field is advisory and not verified.
func (tr *TermReader) readCompressed(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	log.Debugf("entering compressed envelope (advertised %d bytes)", tr.ui32)
	inflater, err := zlib.NewReader(byteReader{br: &tr.br})
	if err != nil {
		return err
	}
	defer inflater.Close()
	inner := NewTermReader(inflater)
	return inner.readTerm(dst)
}

// readTerm reads one tag byte and dispatches on it.
func (tr *TermReader) readTerm(dst *Term) error {
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	return tr.readTermWithTag(tr._1b[0], dst)
}

func (tr *TermReader) readTermWithTag(tag uint8, dst *Term) error {
	switch tag {
	case tagNewFloat:
		return tr.readNewFloat(dst)
	case tagBitBinary:
		return tr.readBitBinary(dst)
	case tagAtomCacheRef:
		return CorruptTermError("atom cache references are not supported")
	case tagSmallInteger:
		return tr.readSmallInteger(dst)
	case tagInteger:
		return tr.readInteger(dst)
	case tagFloat:
		return tr.readFloat(dst)
	case tagAtom:
		return tr.readAtom(2, true, dst)
	case tagReference:
		return tr.readReference(dst)
	case tagPort:
		return tr.readPort(dst)
	case tagPid:
		return tr.readPid(dst)
	case tagSmallTuple:
		return tr.readTuple(1, dst)
	case tagLargeTuple:
		return tr.readTuple(4, dst)
	case tagNil:
		*dst = Nil()
		return nil
	case tagString:
		return tr.readString(dst)
	case tagList:
		return tr.readList(dst)
	case tagBinary:
		return tr.readBinary(dst)
	case tagSmallBig:
		return tr.readBig(1, dst)
	case tagLargeBig:
		return tr.readBig(4, dst)
	case tagNewFun:
		return tr.readNewFun(dst)
	case tagExport:
		return tr.readExport(dst)
	case tagNewReference:
		return tr.readNewReference(dst)
	case tagSmallAtom:
		return tr.readAtom(1, true, dst)
	case tagMap:
		return tr.readMap(dst)
	case tagFun:
		return tr.readFun(dst)
	case tagAtomUTF8:
		return tr.readAtom(2, false, dst)
	case tagSmallAtomUTF8:
		return tr.readAtom(1, false, dst)
	}
	return &UnknownTag{Tag: tag}
}

/*
===============================================================================
    Numbers
===============================================================================
*/

func (tr *TermReader) readSmallInteger(dst *Term) error {
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	*dst = FixInteger{Value: int32(tr._1b[0])}
	return nil
}

func (tr *TermReader) readInteger(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	*dst = FixInteger{Value: int32(tr.ui32)}
	return nil
}

// readNewFloat parses an IEEE-754 big-endian 64-bit payload.
func (tr *TermReader) readNewFloat(dst *Term) error {
	if tr.err = tr.br.ReadBytes(tr._8b[:]); tr.err != nil {
		return tr.err
	}
	f, err := NewFloat(math.Float64frombits(binary.BigEndian.Uint64(tr._8b[:])))
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// readFloat parses the legacy 31-byte NUL-padded decimal string payload.
// The text carries 32-bit precision; the value is widened to 64 bits.
func (tr *TermReader) readFloat(dst *Term) error {
	buf, err := tr.readScratch(31)
	if err != nil {
		return err
	}
	if idx := bytes.IndexByte(buf, 0x00); idx >= 0 {
		buf = buf[:idx]
	}
	if !utf8.Valid(buf) {
		return CorruptTermError("float text is not valid UTF-8")
	}
	value, err := strconv.ParseFloat(string(buf), 32)
	if err != nil {
		return CorruptTermError("cannot parse float text %q: %v", string(buf), err)
	}
	f, err := NewFloat(value)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// readBig parses a sign byte plus little-endian magnitude bytes, with the
// byte count read from a prefix of `prefixSize` bytes.
func (tr *TermReader) readBig(prefixSize int, dst *Term) error {
	count, err := tr.readLength(prefixSize)
	if err != nil {
		return err
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	sign := tr._1b[0]
	if sign != 0 && sign != 1 {
		return CorruptTermError("big integer sign must be 0 or 1 (got %d)", sign)
	}
	buf, err := tr.readScratch(count)
	if err != nil {
		return err
	}
	// magnitude is little-endian on the wire; big.Int wants big-endian
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	value := new(big.Int).SetBytes(buf)
	if sign == 1 {
		value.Neg(value)
	}
	*dst = BigInteger{Value: value}
	return nil
}

/*
===============================================================================
    Atoms
===============================================================================
*/

// readAtom parses an atom with a `prefixSize`-byte length prefix.
// `isLatin1` selects between the Latin-1 and UTF-8 wire encodings.
func (tr *TermReader) readAtom(prefixSize int, isLatin1 bool, dst *Term) error {
	length, err := tr.readLength(prefixSize)
	if err != nil {
		return err
	}
	buf, err := tr.readScratch(length)
	if err != nil {
		return err
	}
	if isLatin1 {
		if tr.latin1 == nil { // lazy instantiation
			tr.latin1 = charmap.ISO8859_1.NewDecoder()
		}
		decoded, err := tr.latin1.Bytes(buf)
		if err != nil {
			return err
		}
		*dst = Atom{Name: string(decoded)}
		return nil
	}
	if !utf8.Valid(buf) {
		return CorruptTermError("atom name is not valid UTF-8")
	}
	*dst = Atom{Name: string(buf)}
	return nil
}

/*
===============================================================================
    Binaries
===============================================================================
*/

func (tr *TermReader) readBinary(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	buf := make([]byte, tr.ui32)
	if tr.err = tr.br.ReadBytes(buf); tr.err != nil {
		return tr.err
	}
	*dst = Binary{Bytes: buf}
	return nil
}

// readBitBinary parses a byte sequence whose last byte carries its
// significant bits in the high positions on the wire; they are shifted
// down into the low positions in memory.
func (tr *TermReader) readBitBinary(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	size := int(tr.ui32)
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	tailBits := tr._1b[0]
	if tailBits < 1 || tailBits > 8 {
		return &OutOfRange{Value: int32(tailBits), Min: 1, Max: 8}
	}
	buf := make([]byte, size)
	if tr.err = tr.br.ReadBytes(buf); tr.err != nil {
		return tr.err
	}
	if size > 0 {
		buf[size-1] >>= 8 - tailBits
	}
	*dst = BitBinary{Bytes: buf, TailBits: tailBits}
	return nil
}

/*
===============================================================================
    Containers
===============================================================================
*/

// readTuple parses a tuple with an arity prefix of `prefixSize` bytes.
func (tr *TermReader) readTuple(prefixSize int, dst *Term) error {
	arity, err := tr.readLength(prefixSize)
	if err != nil {
		return err
	}
	elements := make([]Term, arity)
	for i := range elements {
		if err := tr.readTerm(&elements[i]); err != nil {
			return err
		}
	}
	*dst = Tuple{Elements: elements}
	return nil
}

// readString parses the compact byte-list form into a proper list of
// small integers.
func (tr *TermReader) readString(dst *Term) error {
	if tr.err = tr.br.ReadUint16(&tr.ui16); tr.err != nil {
		return tr.err
	}
	buf, err := tr.readScratch(int(tr.ui16))
	if err != nil {
		return err
	}
	elements := make([]Term, len(buf))
	for i, b := range buf {
		elements[i] = FixInteger{Value: int32(b)}
	}
	*dst = List{Elements: elements}
	return nil
}

// readList parses `count` elements plus one tail term. A nil tail yields
// a proper List; any other tail yields an ImproperList.
func (tr *TermReader) readList(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	elements := make([]Term, tr.ui32)
	for i := range elements {
		if err := tr.readTerm(&elements[i]); err != nil {
			return err
		}
	}
	var last Term
	if err := tr.readTerm(&last); err != nil {
		return err
	}
	if l, ok := last.(List); ok && l.IsNil() {
		*dst = List{Elements: elements}
		return nil
	}
	*dst = ImproperList{Elements: elements, Last: last}
	return nil
}

func (tr *TermReader) readMap(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	entries := make([]MapEntry, tr.ui32)
	for i := range entries {
		if err := tr.readTerm(&entries[i].Key); err != nil {
			return err
		}
		if err := tr.readTerm(&entries[i].Value); err != nil {
			return err
		}
	}
	*dst = Map{Entries: entries}
	return nil
}

/*
===============================================================================
    Identifiers
===============================================================================
*/

func (tr *TermReader) readPid(dst *Term) error {
	var pid Pid
	if err := tr.readPidBody(&pid); err != nil {
		return err
	}
	*dst = pid
	return nil
}

// readPidBody parses the fields following a PID tag.
func (tr *TermReader) readPidBody(dst *Pid) error {
	node, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	dst.Node = node
	if tr.err = tr.br.ReadUint32(&dst.ID); tr.err != nil {
		return tr.err
	}
	if tr.err = tr.br.ReadUint32(&dst.Serial); tr.err != nil {
		return tr.err
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	dst.Creation = tr._1b[0]
	return nil
}

func (tr *TermReader) readPort(dst *Term) error {
	node, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	port := Port{Node: node}
	if tr.err = tr.br.ReadUint32(&port.ID); tr.err != nil {
		return tr.err
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	port.Creation = tr._1b[0]
	*dst = port
	return nil
}

// readReference parses the legacy single-word reference form.
func (tr *TermReader) readReference(dst *Term) error {
	node, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	ref := Reference{Node: node, ID: make([]uint32, 1)}
	if tr.err = tr.br.ReadUint32(&ref.ID[0]); tr.err != nil {
		return tr.err
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	ref.Creation = tr._1b[0]
	*dst = ref
	return nil
}

func (tr *TermReader) readNewReference(dst *Term) error {
	if tr.err = tr.br.ReadUint16(&tr.ui16); tr.err != nil {
		return tr.err
	}
	idCount := int(tr.ui16)
	node, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	ref := Reference{Node: node, Creation: tr._1b[0], ID: make([]uint32, idCount)}
	for i := range ref.ID {
		if tr.err = tr.br.ReadUint32(&ref.ID[i]); tr.err != nil {
			return tr.err
		}
	}
	*dst = ref
	return nil
}

/*
===============================================================================
    Funs
===============================================================================
*/

func (tr *TermReader) readExport(dst *Term) error {
	module, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	function, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	arity, err := tr.readTermIntoRangedInteger(0, 0xFF)
	if err != nil {
		return err
	}
	*dst = ExternalFun{Module: module, Function: function, Arity: uint8(arity)}
	return nil
}

func (tr *TermReader) readFun(dst *Term) error {
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	numFree := int(tr.ui32)
	fun := OldFun{}
	if err := tr.readTermIntoPid(&fun.Pid); err != nil {
		return err
	}
	module, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	fun.Module = module
	index, err := tr.readTermIntoFixInteger()
	if err != nil {
		return err
	}
	fun.Index = index.Value
	uniq, err := tr.readTermIntoFixInteger()
	if err != nil {
		return err
	}
	fun.Uniq = uniq.Value
	fun.FreeVars = make([]Term, numFree)
	for i := range fun.FreeVars {
		if err := tr.readTerm(&fun.FreeVars[i]); err != nil {
			return err
		}
	}
	*dst = fun
	return nil
}

func (tr *TermReader) readNewFun(dst *Term) error {
	// total size: implied by the stream contents, not needed here
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	fun := NewFun{}
	if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
		return tr.err
	}
	fun.Arity = tr._1b[0]
	if tr.err = tr.br.ReadBytes(tr._16b[:]); tr.err != nil {
		return tr.err
	}
	copy(fun.Uniq[:], tr._16b[:])
	if tr.err = tr.br.ReadUint32(&fun.Index); tr.err != nil {
		return tr.err
	}
	if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
		return tr.err
	}
	numFree := int(tr.ui32)
	module, err := tr.readTermIntoAtom()
	if err != nil {
		return err
	}
	fun.Module = module
	oldIndex, err := tr.readTermIntoFixInteger()
	if err != nil {
		return err
	}
	fun.OldIndex = oldIndex.Value
	oldUniq, err := tr.readTermIntoFixInteger()
	if err != nil {
		return err
	}
	fun.OldUniq = oldUniq.Value
	if err := tr.readTermIntoPid(&fun.Pid); err != nil {
		return err
	}
	fun.FreeVars = make([]Term, numFree)
	for i := range fun.FreeVars {
		if err := tr.readTerm(&fun.FreeVars[i]); err != nil {
			return err
		}
	}
	*dst = fun
	return nil
}

/*
===============================================================================
    Typed Field Helpers
===============================================================================
*/

// readTermIntoAtom reads one nested term and type-checks it as an Atom.
func (tr *TermReader) readTermIntoAtom() (Atom, error) {
	var term Term
	if err := tr.readTerm(&term); err != nil {
		return Atom{}, err
	}
	atom, ok := term.(Atom)
	if !ok {
		return Atom{}, &UnexpectedType{Value: term, Expected: "Atom"}
	}
	return atom, nil
}

// readTermIntoFixInteger reads one nested term and type-checks it as a
// FixInteger.
func (tr *TermReader) readTermIntoFixInteger() (FixInteger, error) {
	var term Term
	if err := tr.readTerm(&term); err != nil {
		return FixInteger{}, err
	}
	i, ok := term.(FixInteger)
	if !ok {
		return FixInteger{}, &UnexpectedType{Value: term, Expected: "FixInteger"}
	}
	return i, nil
}

// readTermIntoRangedInteger reads a FixInteger field and checks it lies
// within [min, max].
func (tr *TermReader) readTermIntoRangedInteger(min, max int32) (int32, error) {
	i, err := tr.readTermIntoFixInteger()
	if err != nil {
		return 0, err
	}
	if i.Value < min || i.Value > max {
		return 0, &OutOfRange{Value: i.Value, Min: min, Max: max}
	}
	return i.Value, nil
}

// readTermIntoPid reads one nested term and type-checks it as a Pid.
func (tr *TermReader) readTermIntoPid(dst *Pid) error {
	var term Term
	if err := tr.readTerm(&term); err != nil {
		return err
	}
	pid, ok := term.(Pid)
	if !ok {
		return &UnexpectedType{Value: term, Expected: "Pid"}
	}
	*dst = pid
	return nil
}

/*
===============================================================================
    Low-Level Reads
===============================================================================
*/

// readLength reads an unsigned length prefix of 1, 2 or 4 bytes.
func (tr *TermReader) readLength(prefixSize int) (int, error) {
	switch prefixSize {
	case 1:
		if tr.err = tr.br.ReadBytes(tr._1b[:]); tr.err != nil {
			return 0, tr.err
		}
		return int(tr._1b[0]), nil
	case 2:
		if tr.err = tr.br.ReadUint16(&tr.ui16); tr.err != nil {
			return 0, tr.err
		}
		return int(tr.ui16), nil
	default:
		if tr.err = tr.br.ReadUint32(&tr.ui32); tr.err != nil {
			return 0, tr.err
		}
		return int(tr.ui32), nil
	}
}

// readScratch reads `n` bytes into the reusable scratch buffer.
// The returned slice is only valid until the next variable-length read.
func (tr *TermReader) readScratch(n int) ([]byte, error) {
	if cap(tr.scratch) < n {
		tr.scratch = make([]byte, n)
	}
	tr.scratch = tr.scratch[:n]
	if n == 0 {
		return tr.scratch, nil
	}
	if tr.err = tr.br.ReadBytes(tr.scratch); tr.err != nil {
		return nil, tr.err
	}
	return tr.scratch, nil
}

// byteReader adapts a `bin.Reader` back to `io.Reader` so that the zlib
// inflater can continue from the reader's current position without
// bypassing its internal buffer.
type byteReader struct {
	br *bin.Reader
}

func (r byteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.br.ReadBytes(p[:1]); err != nil {
		return 0, err
	}
	return 1, nil
}
