package wire

import (
	"encoding/binary"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// maxBitmapBits bounds the range an ACKNACK/GAP bitmap can express in one
// submessage, per DDSI-RTPS 2.4 section 9.4.2.6.
const maxBitmapBits = 256

// SequenceNumberSet names a bitmapBase plus a bitmap of up to 256 bits: bit
// i set means bitmapBase+i is in the set. It is the wire element used by
// ACKNACK (missing changes) and GAP (irrelevant changes).
type SequenceNumberSet struct {
	Base rtpstypes.SequenceNumber
	Bits []rtpstypes.SequenceNumber // the actual sequence numbers present in the set, ascending
}

// NewSequenceNumberSet builds a set from a base and explicit member list.
// Members below base or base+maxBitmapBits are silently dropped, since they
// cannot be represented on the wire.
func NewSequenceNumberSet(base rtpstypes.SequenceNumber, members []rtpstypes.SequenceNumber) SequenceNumberSet {
	var kept []rtpstypes.SequenceNumber
	for _, m := range members {
		if m >= base && m < base+maxBitmapBits {
			kept = append(kept, m)
		}
	}
	return SequenceNumberSet{Base: base, Bits: kept}
}

// Encode appends the wire form: bitmapBase (8 bytes), numBits (4 bytes),
// then ceil(numBits/32) big-endian bitmap words.
func (s SequenceNumberSet) Encode(buf []byte, order binary.ByteOrder) []byte {
	buf = EncodeSequenceNumber(buf, order, s.Base)

	numBits := uint32(0)
	for _, m := range s.Bits {
		bit := uint32(m - s.Base)
		if bit+1 > numBits {
			numBits = bit + 1
		}
	}

	var numBitsBuf [4]byte
	order.PutUint32(numBitsBuf[:], numBits)
	buf = append(buf, numBitsBuf[:]...)

	numWords := (numBits + 31) / 32
	words := make([]uint32, numWords)
	for _, m := range s.Bits {
		bit := uint32(m - s.Base)
		words[bit/32] |= 1 << (31 - bit%32)
	}
	for _, w := range words {
		var wb [4]byte
		order.PutUint32(wb[:], w)
		buf = append(buf, wb[:]...)
	}
	return buf
}

// DecodeSequenceNumberSet reads a SequenceNumberSet from the front of buf.
func DecodeSequenceNumberSet(buf []byte, order binary.ByteOrder) (SequenceNumberSet, []byte, error) {
	base, buf, err := DecodeSequenceNumber(buf, order)
	if err != nil {
		return SequenceNumberSet{}, nil, err
	}
	if len(buf) < 4 {
		return SequenceNumberSet{}, nil, ErrShortBuffer
	}
	numBits := order.Uint32(buf[0:4])
	buf = buf[4:]

	if numBits > maxBitmapBits {
		numBits = maxBitmapBits
	}
	numWords := (numBits + 31) / 32
	if uint32(len(buf)) < numWords*4 {
		return SequenceNumberSet{}, nil, ErrShortBuffer
	}

	var bits []rtpstypes.SequenceNumber
	for i := uint32(0); i < numBits; i++ {
		word := order.Uint32(buf[(i/32)*4 : (i/32)*4+4])
		if word&(1<<(31-i%32)) != 0 {
			bits = append(bits, base+rtpstypes.SequenceNumber(i))
		}
	}
	buf = buf[numWords*4:]
	return SequenceNumberSet{Base: base, Bits: bits}, buf, nil
}
