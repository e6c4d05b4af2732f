// Package wire implements the RTPS wire format: message and submessage
// headers, the ParameterList and SequenceNumberSet submessage elements, and
// the per-kind submessage codecs (DATA, HEARTBEAT, ACKNACK, GAP, INFO_TS,
// PAD) used by the receiver and transmitter.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

var (
	// ErrShortBuffer is returned whenever a Decode call runs out of bytes
	// before finishing a fixed-size field.
	ErrShortBuffer = errors.New("wire: buffer too short")
	// ErrBadProtocol is returned when a message does not start with the
	// 'RTPS' magic.
	ErrBadProtocol = errors.New("wire: not an RTPS message")
)

// protocolID is the 4-byte magic every RTPS message starts with.
var protocolID = [4]byte{'R', 'T', 'P', 'S'}

// MessageHeader is the fixed 20-byte header present once per UDP datagram.
type MessageHeader struct {
	Version    rtpstypes.ProtocolVersion
	VendorID   rtpstypes.VendorId
	GuidPrefix rtpstypes.GuidPrefix
}

const MessageHeaderLength = 20

// Encode appends the wire representation of h to buf and returns the
// extended slice.
func (h MessageHeader) Encode(buf []byte) []byte {
	buf = append(buf, protocolID[:]...)
	buf = append(buf, h.Version.Major, h.Version.Minor)
	buf = append(buf, h.VendorID[:]...)
	buf = append(buf, h.GuidPrefix[:]...)
	return buf
}

// DecodeMessageHeader parses the header at the start of buf, returning the
// remaining unconsumed bytes.
func DecodeMessageHeader(buf []byte) (MessageHeader, []byte, error) {
	if len(buf) < MessageHeaderLength {
		return MessageHeader{}, nil, ErrShortBuffer
	}
	if buf[0] != protocolID[0] || buf[1] != protocolID[1] || buf[2] != protocolID[2] || buf[3] != protocolID[3] {
		return MessageHeader{}, nil, ErrBadProtocol
	}
	var h MessageHeader
	h.Version = rtpstypes.ProtocolVersion{Major: buf[4], Minor: buf[5]}
	copy(h.VendorID[:], buf[6:8])
	copy(h.GuidPrefix[:], buf[8:20])
	return h, buf[MessageHeaderLength:], nil
}

// SubmessageHeader is the 4-byte header preceding every submessage: a kind
// octet, a flags octet whose bit 0 is the endianness flag (set means
// little-endian), and a 16-bit octetsToNextHeader length.
type SubmessageHeader struct {
	ID     byte
	Flags  byte
	Length uint16
}

const SubmessageHeaderLength = 4

// LittleEndian reports whether bit 0 of Flags (the 'E' endianness flag) is
// set, meaning the submessage body is encoded little-endian.
func (h SubmessageHeader) LittleEndian() bool { return h.Flags&0x01 != 0 }

// ByteOrder returns the binary.ByteOrder implied by the header's
// endianness flag.
func (h SubmessageHeader) ByteOrder() binary.ByteOrder {
	if h.LittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (h SubmessageHeader) Encode(buf []byte) []byte {
	buf = append(buf, h.ID, h.Flags)
	lenBuf := make([]byte, 2)
	h.ByteOrder().PutUint16(lenBuf, h.Length)
	return append(buf, lenBuf...)
}

func DecodeSubmessageHeader(buf []byte) (SubmessageHeader, []byte, error) {
	if len(buf) < SubmessageHeaderLength {
		return SubmessageHeader{}, nil, ErrShortBuffer
	}
	h := SubmessageHeader{ID: buf[0], Flags: buf[1]}
	h.Length = h.ByteOrder().Uint16(buf[2:4])
	return h, buf[SubmessageHeaderLength:], nil
}

// Known submessage kind octets, DDSI-RTPS 2.4 table 9.13.
const (
	SubmessageKindPad           byte = 0x01
	SubmessageKindAckNack       byte = 0x06
	SubmessageKindHeartbeat     byte = 0x07
	SubmessageKindGap           byte = 0x08
	SubmessageKindInfoTimestamp byte = 0x09
	SubmessageKindInfoSource    byte = 0x0c
	SubmessageKindInfoReplyIP4  byte = 0x0d
	SubmessageKindInfoDest      byte = 0x0e
	SubmessageKindInfoReply     byte = 0x0f
	SubmessageKindNackFrag      byte = 0x12
	SubmessageKindHeartbeatFrag byte = 0x13
	SubmessageKindData          byte = 0x15
	SubmessageKindDataFrag      byte = 0x16
)

func flagsToByte(flags []bool) byte {
	var b byte
	for i, f := range flags {
		if f {
			b |= 1 << uint(i)
		}
	}
	return b
}

func isBitSet(b byte, bit uint) bool {
	return b&(1<<bit) != 0
}
