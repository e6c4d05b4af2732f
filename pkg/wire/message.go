package wire

import "encoding/binary"

// Message is a full RTPS message: one MessageHeader followed by zero or
// more submessages. Per DDSI-RTPS 2.4 section 9.4.5.1.3, each submessage
// carries its own endianness flag, so in principle a single message could
// mix byte orders; in practice one transmitter always emits a uniform
// order, which is what Encode does here.
type Message struct {
	Header      MessageHeader
	Submessages []Submessage
}

// ByteOrder is the order new messages are encoded in. The teacher's own
// host is little-endian and RTPS implementations overwhelmingly emit LE
// on the wire, matching what the UDP PSM reference tests assert.
var ByteOrder binary.ByteOrder = binary.LittleEndian

// Encode serializes the full message.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, 256)
	buf = m.Header.Encode(buf)
	for _, sm := range m.Submessages {
		body := sm.encodeBody(nil, ByteOrder)
		hdr := SubmessageHeader{
			ID:     sm.Kind(),
			Flags:  sm.flags() | endiannessBit(ByteOrder),
			Length: uint16(len(body)),
		}
		buf = hdr.Encode(buf)
		buf = append(buf, body...)
	}
	return buf
}

func endiannessBit(order binary.ByteOrder) byte {
	if order == binary.LittleEndian {
		return 0x01
	}
	return 0x00
}

// DecodeMessage parses a full RTPS message. Submessages of an unrecognized
// kind are skipped using the submessage header's length field, per the
// standard's forward-compatibility rule.
func DecodeMessage(buf []byte) (Message, error) {
	header, rest, err := DecodeMessageHeader(buf)
	if err != nil {
		return Message{}, err
	}

	var m Message
	m.Header = header

	for len(rest) >= SubmessageHeaderLength {
		smHeader, body, err := DecodeSubmessageHeader(rest)
		if err != nil {
			return Message{}, err
		}
		var payload []byte
		if smHeader.Length == 0 {
			// Length 0 means "extends to the end of the containing
			// message" (DDSI-RTPS 2.4 section 9.4.1): only valid for the
			// last submessage, so nothing is left to parse after it.
			payload = body
			rest = nil
		} else {
			if len(body) < int(smHeader.Length) {
				return Message{}, ErrShortBuffer
			}
			payload = body[:smHeader.Length]
			rest = body[smHeader.Length:]
		}
		order := smHeader.ByteOrder()

		switch smHeader.ID {
		case SubmessageKindData:
			sm, err := decodeDataSubmessage(payload, order, smHeader.Flags)
			if err != nil {
				return Message{}, err
			}
			m.Submessages = append(m.Submessages, sm)
		case SubmessageKindHeartbeat:
			sm, err := decodeHeartbeatSubmessage(payload, order, smHeader.Flags)
			if err != nil {
				return Message{}, err
			}
			m.Submessages = append(m.Submessages, sm)
		case SubmessageKindAckNack:
			sm, err := decodeAckNackSubmessage(payload, order, smHeader.Flags)
			if err != nil {
				return Message{}, err
			}
			m.Submessages = append(m.Submessages, sm)
		case SubmessageKindGap:
			sm, err := decodeGapSubmessage(payload, order)
			if err != nil {
				return Message{}, err
			}
			m.Submessages = append(m.Submessages, sm)
		case SubmessageKindInfoTimestamp:
			sm, err := decodeInfoTimestampSubmessage(payload, order, smHeader.Flags)
			if err != nil {
				return Message{}, err
			}
			m.Submessages = append(m.Submessages, sm)
		case SubmessageKindPad:
			m.Submessages = append(m.Submessages, PadSubmessage{})
		default:
			// Unknown submessage kind: skip over it per the submessage
			// header's own length, so future extensions don't break us.
		}
	}
	return m, nil
}
