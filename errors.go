package etf

import (
	"fmt"
	"math/big"
)

/*
===============================================================================
    Decode Errors
===============================================================================
*/

// UnsupportedVersion is an error indicating that the version byte did not
// match the supported format version.
type UnsupportedVersion struct {
	Version uint8
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported version %d (expected %d)", e.Version, formatVersion)
}

// UnknownTag is an error indicating that a tag byte is not in the
// recognised set.
type UnknownTag struct {
	Tag uint8
}

func (e *UnknownTag) Error() string {
	return fmt.Sprintf("unknown tag %d", e.Tag)
}

// UnexpectedType is an error indicating that a nested field decoded
// successfully, but to the wrong variant.
type UnexpectedType struct {
	Value    Term
	Expected string
}

func (e *UnexpectedType) Error() string {
	return fmt.Sprintf("%s is not a %s", e.Value, e.Expected)
}

// OutOfRange is an error indicating that a numeric field decoded to a
// value outside its permitted interval.
type OutOfRange struct {
	Value int32
	Min   int32
	Max   int32
}

func (e *OutOfRange) Error() string {
	return fmt.Sprintf("%d is out of range %d..%d", e.Value, e.Min, e.Max)
}

// NonFiniteFloat is an error indicating a floating point value that is
// NaN or infinite.
type NonFiniteFloat struct {
}

func (e *NonFiniteFloat) Error() string {
	return "float value is not finite"
}

// CorruptTerm is an error indicating that the input bytes do not form a
// valid term.
type CorruptTerm struct {
	error
}

// CorruptTermError raises a `CorruptTerm` error
func CorruptTermError(format string, a ...interface{}) *CorruptTerm {
	return &CorruptTerm{fmt.Errorf(format, a...)}
}

/*
===============================================================================
    Encode Errors
===============================================================================
*/

// TooLongAtomName is an error indicating that an atom name exceeds the
// 65535 byte limit of the wire format.
type TooLongAtomName struct {
	Atom Atom
}

func (e *TooLongAtomName) Error() string {
	return fmt.Sprintf("too long atom name: %d bytes", len(e.Atom.Name))
}

// TooLargeInteger is an error indicating that an integer magnitude does
// not fit the 32-bit length prefix of LARGE_BIG.
type TooLargeInteger struct {
	Value *big.Int
}

func (e *TooLargeInteger) Error() string {
	return fmt.Sprintf("too large integer value: %d bytes required to encode", (e.Value.BitLen()+7)/8)
}

// TooLargeReferenceID is an error indicating that a reference carries
// more than 65535 ID words.
type TooLargeReferenceID struct {
	Reference Reference
}

func (e *TooLargeReferenceID) Error() string {
	return fmt.Sprintf("too large reference ID: %d words", len(e.Reference.ID))
}
