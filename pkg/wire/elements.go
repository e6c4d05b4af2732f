package wire

import (
	"encoding/binary"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// EncodeEntityId appends an EntityId's 4-byte wire form to buf.
func EncodeEntityId(buf []byte, id rtpstypes.EntityId) []byte {
	buf = append(buf, id.Key[:]...)
	return append(buf, id.Kind)
}

// DecodeEntityId reads a 4-byte EntityId from the front of buf.
func DecodeEntityId(buf []byte) (rtpstypes.EntityId, []byte, error) {
	if len(buf) < 4 {
		return rtpstypes.EntityId{}, nil, ErrShortBuffer
	}
	var id rtpstypes.EntityId
	copy(id.Key[:], buf[0:3])
	id.Kind = buf[3]
	return id, buf[4:], nil
}

// EncodeGuidPrefix appends a 12-byte GuidPrefix to buf.
func EncodeGuidPrefix(buf []byte, p rtpstypes.GuidPrefix) []byte {
	return append(buf, p[:]...)
}

// DecodeGuidPrefix reads a 12-byte GuidPrefix from the front of buf.
func DecodeGuidPrefix(buf []byte) (rtpstypes.GuidPrefix, []byte, error) {
	if len(buf) < 12 {
		return rtpstypes.GuidPrefix{}, nil, ErrShortBuffer
	}
	var p rtpstypes.GuidPrefix
	copy(p[:], buf[0:12])
	return p, buf[12:], nil
}

// EncodeSequenceNumber appends the (high, low) wire pair for sn, in the
// given byte order, to buf.
func EncodeSequenceNumber(buf []byte, order binary.ByteOrder, sn rtpstypes.SequenceNumber) []byte {
	var tmp [8]byte
	order.PutUint32(tmp[0:4], uint32(sn.High()))
	order.PutUint32(tmp[4:8], sn.Low())
	return append(buf, tmp[:]...)
}

// DecodeSequenceNumber reads an 8-byte SequenceNumber from the front of buf.
func DecodeSequenceNumber(buf []byte, order binary.ByteOrder) (rtpstypes.SequenceNumber, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, ErrShortBuffer
	}
	high := int32(order.Uint32(buf[0:4]))
	low := order.Uint32(buf[4:8])
	return rtpstypes.SequenceNumberFromParts(high, low), buf[8:], nil
}

// EncodeLocator appends a Locator's 24-byte wire form (kind, port, 16-byte
// address) to buf.
func EncodeLocator(buf []byte, order binary.ByteOrder, loc rtpstypes.Locator) []byte {
	var tmp [8]byte
	order.PutUint32(tmp[0:4], uint32(loc.Kind))
	order.PutUint32(tmp[4:8], loc.Port)
	buf = append(buf, tmp[:]...)
	return append(buf, loc.Address[:]...)
}

// DecodeLocator reads a 24-byte Locator from the front of buf.
func DecodeLocator(buf []byte, order binary.ByteOrder) (rtpstypes.Locator, []byte, error) {
	if len(buf) < 24 {
		return rtpstypes.Locator{}, nil, ErrShortBuffer
	}
	var loc rtpstypes.Locator
	loc.Kind = int32(order.Uint32(buf[0:4]))
	loc.Port = order.Uint32(buf[4:8])
	copy(loc.Address[:], buf[8:24])
	return loc, buf[24:], nil
}

// EncodeString appends a CDR string to buf: a u32 length (including the null
// terminator), the bytes, the terminator, then padding out to a 4-byte
// boundary.
func EncodeString(buf []byte, order binary.ByteOrder, s string) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], uint32(len(s)+1))
	buf = append(buf, tmp[:]...)
	buf = append(buf, s...)
	buf = append(buf, 0)
	if pad := (len(s) + 1) % 4; pad != 0 {
		buf = append(buf, make([]byte, 4-pad)...)
	}
	return buf
}

// DecodeString reads a CDR string from the front of buf.
func DecodeString(buf []byte, order binary.ByteOrder) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, ErrShortBuffer
	}
	n := int(order.Uint32(buf[0:4]))
	buf = buf[4:]
	if n == 0 || len(buf) < n {
		return "", nil, ErrShortBuffer
	}
	s := string(buf[:n-1])
	buf = buf[n:]
	if pad := n % 4; pad != 0 {
		skip := 4 - pad
		if len(buf) < skip {
			return "", nil, ErrShortBuffer
		}
		buf = buf[skip:]
	}
	return s, buf, nil
}
