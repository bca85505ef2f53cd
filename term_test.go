package etf

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

/*
===============================================================================
    Constructors
===============================================================================
*/

func TestNewFloat(t *testing.T) {
	t.Parallel()
	f, err := NewFloat(1.5)
	assert.NoError(t, err)
	assert.Equal(t, 1.5, f.Value)

	f, err = NewFloat(0)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, f.Value)
}

func TestNewFloatError(t *testing.T) {
	t.Parallel()
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewFloat(v)
		assert.IsType(t, &NonFiniteFloat{}, err)
	}
}

func TestNewImproperList(t *testing.T) {
	t.Parallel()
	l, err := NewImproperList([]Term{Atom{Name: "a"}}, Atom{Name: "b"})
	assert.NoError(t, err)
	assert.Len(t, l.Elements, 1)
	assert.Equal(t, Atom{Name: "b"}, l.Last)
}

func TestNewImproperListError(t *testing.T) {
	t.Parallel()
	// an improper list with no leading elements is just its tail
	_, err := NewImproperList([]Term{}, Atom{Name: "b"})
	assert.IsType(t, &CorruptTerm{}, err)
}

func TestNil(t *testing.T) {
	t.Parallel()
	assert.True(t, Nil().IsNil())
	assert.False(t, List{Elements: []Term{FixInteger{Value: 1}}}.IsNil())
}

/*
===============================================================================
    String Representations
===============================================================================
*/

func TestTermString(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		term     Term
		expected string
	}{
		{Atom{Name: "ok"}, "'ok'"},
		{FixInteger{Value: -42}, "-42"},
		{BigInteger{Value: big.NewInt(1 << 40)}, "1099511627776"},
		{BigInteger{}, "0"},
		{Float{Value: 1.5}, "1.5"},
		{Pid{Node: Atom{Name: "n"}, ID: 1, Serial: 2}, "<n.1.2>"},
		{Port{Node: Atom{Name: "n"}, ID: 4}, "#Port<n.4>"},
		{Reference{Node: Atom{Name: "n"}, ID: []uint32{1, 2}}, "#Ref<n.1.2>"},
		{ExternalFun{Module: Atom{Name: "m"}, Function: Atom{Name: "f"}, Arity: 2}, "fun m:f/2"},
		{OldFun{Module: Atom{Name: "m"}, Index: 1, Uniq: 2}, "#Fun<m.1.2>"},
		{NewFun{Module: Atom{Name: "m"}, OldIndex: 3, OldUniq: 4}, "#Fun<m.3.4>"},
		{Binary{Bytes: []byte("abc")}, "<<3 bytes>>"},
		{BitBinary{Bytes: []byte{0xFF}, TailBits: 3}, "<<1 bytes:3>>"},
		{List{Elements: []Term{FixInteger{Value: 1}, Atom{Name: "a"}}}, "[1,'a']"},
		{ImproperList{Elements: []Term{FixInteger{Value: 1}}, Last: Atom{Name: "t"}}, "[1|'t']"},
		{Tuple{Elements: []Term{Atom{Name: "ok"}, FixInteger{Value: 1}}}, "{'ok',1}"},
		{Map{Entries: []MapEntry{{Key: Atom{Name: "a"}, Value: FixInteger{Value: 1}}}}, "#{'a'=>1}"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, testCase.term.String())
	}
}

/*
===============================================================================
    Errors
===============================================================================
*/

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unsupported version 130 (expected 131)", (&UnsupportedVersion{Version: 130}).Error())
	assert.Equal(t, "unknown tag 200", (&UnknownTag{Tag: 200}).Error())
	assert.Equal(t, "'x' is not a Pid", (&UnexpectedType{Value: Atom{Name: "x"}, Expected: "Pid"}).Error())
	assert.Equal(t, "300 is out of range 0..255", (&OutOfRange{Value: 300, Min: 0, Max: 255}).Error())
	assert.Equal(t, "float value is not finite", (&NonFiniteFloat{}).Error())
	assert.Equal(t, "too long atom name: 2 bytes", (&TooLongAtomName{Atom: Atom{Name: "ab"}}).Error())
	assert.Equal(t, "too large integer value: 6 bytes required to encode", (&TooLargeInteger{Value: big.NewInt(1 << 40)}).Error())
	assert.Equal(t, "too large reference ID: 3 words", (&TooLargeReferenceID{Reference: Reference{ID: make([]uint32, 3)}}).Error())
}
