package wire

import (
	"encoding/binary"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// Submessage is one RTPS submessage: any of DataSubmessage, HeartbeatSubmessage,
// AckNackSubmessage, GapSubmessage, InfoTimestampSubmessage, or PadSubmessage.
type Submessage interface {
	// Kind returns this submessage's wire kind octet.
	Kind() byte
	// flags returns the submessage-specific flag bits, not including the
	// endianness bit, which Message.Encode sets uniformly.
	flags() byte
	// encodeBody appends the submessage body (everything after the
	// 4-byte submessage header) to buf.
	encodeBody(buf []byte, order binary.ByteOrder) []byte
}

// DataSubmessage carries one CacheChange's sample (or a dispose/unregister
// marked via the inline QoS StatusInfo parameter).
type DataSubmessage struct {
	InlineQosFlag     bool
	DataFlag          bool
	KeyFlag           bool
	ReaderId          rtpstypes.EntityId
	WriterId          rtpstypes.EntityId
	WriterSN          rtpstypes.SequenceNumber
	InlineQos         ParameterList
	SerializedPayload []byte
}

func (d DataSubmessage) Kind() byte { return SubmessageKindData }

func (d DataSubmessage) flags() byte {
	return flagsToByte([]bool{false, d.InlineQosFlag, d.DataFlag, d.KeyFlag, false})
}

func (d DataSubmessage) encodeBody(buf []byte, order binary.ByteOrder) []byte {
	// extraFlags (reserved) + octetsToInlineQos; octetsToInlineQos counts
	// from right after this field to the start of inline QoS / payload,
	// which for this PSM is always readerId+writerId+writerSN = 16 bytes.
	buf = append(buf, 0, 0)
	var octets [2]byte
	order.PutUint16(octets[:], 16)
	buf = append(buf, octets[:]...)

	buf = EncodeEntityId(buf, d.ReaderId)
	buf = EncodeEntityId(buf, d.WriterId)
	buf = EncodeSequenceNumber(buf, order, d.WriterSN)
	if d.InlineQosFlag {
		buf = d.InlineQos.Encode(buf, order)
	}
	if d.DataFlag || d.KeyFlag {
		buf = append(buf, d.SerializedPayload...)
	}
	return buf
}

func decodeDataSubmessage(body []byte, order binary.ByteOrder, flags byte) (DataSubmessage, error) {
	d := DataSubmessage{
		InlineQosFlag: isBitSet(flags, 1),
		DataFlag:      isBitSet(flags, 2),
		KeyFlag:       isBitSet(flags, 3),
	}
	if len(body) < 4 {
		return DataSubmessage{}, ErrShortBuffer
	}
	body = body[4:] // extraFlags + octetsToInlineQos

	var err error
	d.ReaderId, body, err = DecodeEntityId(body)
	if err != nil {
		return DataSubmessage{}, err
	}
	d.WriterId, body, err = DecodeEntityId(body)
	if err != nil {
		return DataSubmessage{}, err
	}
	d.WriterSN, body, err = DecodeSequenceNumber(body, order)
	if err != nil {
		return DataSubmessage{}, err
	}
	if d.InlineQosFlag {
		d.InlineQos, body, err = DecodeParameterList(body, order)
		if err != nil {
			return DataSubmessage{}, err
		}
	}
	if d.DataFlag || d.KeyFlag {
		d.SerializedPayload = body
	}
	return d, nil
}

// HeartbeatSubmessage tells a matched reader the range of sequence numbers
// a reliable writer holds, driving ACKNACK-based repair.
type HeartbeatSubmessage struct {
	FinalFlag      bool
	LivelinessFlag bool
	ReaderId       rtpstypes.EntityId
	WriterId       rtpstypes.EntityId
	FirstSN        rtpstypes.SequenceNumber
	LastSN         rtpstypes.SequenceNumber
	Count          int32
}

func (h HeartbeatSubmessage) Kind() byte { return SubmessageKindHeartbeat }

func (h HeartbeatSubmessage) flags() byte {
	return flagsToByte([]bool{false, h.FinalFlag, h.LivelinessFlag})
}

func (h HeartbeatSubmessage) encodeBody(buf []byte, order binary.ByteOrder) []byte {
	buf = EncodeEntityId(buf, h.ReaderId)
	buf = EncodeEntityId(buf, h.WriterId)
	buf = EncodeSequenceNumber(buf, order, h.FirstSN)
	buf = EncodeSequenceNumber(buf, order, h.LastSN)
	var c [4]byte
	order.PutUint32(c[:], uint32(h.Count))
	return append(buf, c[:]...)
}

func decodeHeartbeatSubmessage(body []byte, order binary.ByteOrder, flags byte) (HeartbeatSubmessage, error) {
	h := HeartbeatSubmessage{
		FinalFlag:      isBitSet(flags, 1),
		LivelinessFlag: isBitSet(flags, 2),
	}
	var err error
	h.ReaderId, body, err = DecodeEntityId(body)
	if err != nil {
		return HeartbeatSubmessage{}, err
	}
	h.WriterId, body, err = DecodeEntityId(body)
	if err != nil {
		return HeartbeatSubmessage{}, err
	}
	h.FirstSN, body, err = DecodeSequenceNumber(body, order)
	if err != nil {
		return HeartbeatSubmessage{}, err
	}
	h.LastSN, body, err = DecodeSequenceNumber(body, order)
	if err != nil {
		return HeartbeatSubmessage{}, err
	}
	if len(body) < 4 {
		return HeartbeatSubmessage{}, ErrShortBuffer
	}
	h.Count = int32(order.Uint32(body[0:4]))
	return h, nil
}

// AckNackSubmessage reports which sequence numbers a reader is missing
// from a matched writer, and requests their retransmission.
type AckNackSubmessage struct {
	FinalFlag     bool
	ReaderId      rtpstypes.EntityId
	WriterId      rtpstypes.EntityId
	ReaderSNState SequenceNumberSet
	Count         int32
}

func (a AckNackSubmessage) Kind() byte { return SubmessageKindAckNack }

func (a AckNackSubmessage) flags() byte {
	return flagsToByte([]bool{false, a.FinalFlag})
}

func (a AckNackSubmessage) encodeBody(buf []byte, order binary.ByteOrder) []byte {
	buf = EncodeEntityId(buf, a.ReaderId)
	buf = EncodeEntityId(buf, a.WriterId)
	buf = a.ReaderSNState.Encode(buf, order)
	var c [4]byte
	order.PutUint32(c[:], uint32(a.Count))
	return append(buf, c[:]...)
}

func decodeAckNackSubmessage(body []byte, order binary.ByteOrder, flags byte) (AckNackSubmessage, error) {
	a := AckNackSubmessage{FinalFlag: isBitSet(flags, 1)}
	var err error
	a.ReaderId, body, err = DecodeEntityId(body)
	if err != nil {
		return AckNackSubmessage{}, err
	}
	a.WriterId, body, err = DecodeEntityId(body)
	if err != nil {
		return AckNackSubmessage{}, err
	}
	a.ReaderSNState, body, err = DecodeSequenceNumberSet(body, order)
	if err != nil {
		return AckNackSubmessage{}, err
	}
	if len(body) < 4 {
		return AckNackSubmessage{}, ErrShortBuffer
	}
	a.Count = int32(order.Uint32(body[0:4]))
	return a, nil
}

// GapSubmessage tells a reader that a range of sequence numbers will never
// be sent: the writer disposed of them before the reader matched, or they
// were irrelevant to this reader's content filter.
type GapSubmessage struct {
	ReaderId rtpstypes.EntityId
	WriterId rtpstypes.EntityId
	GapStart rtpstypes.SequenceNumber
	GapList  SequenceNumberSet
}

func (g GapSubmessage) Kind() byte { return SubmessageKindGap }

func (g GapSubmessage) flags() byte { return 0 }

func (g GapSubmessage) encodeBody(buf []byte, order binary.ByteOrder) []byte {
	buf = EncodeEntityId(buf, g.ReaderId)
	buf = EncodeEntityId(buf, g.WriterId)
	buf = EncodeSequenceNumber(buf, order, g.GapStart)
	return g.GapList.Encode(buf, order)
}

func decodeGapSubmessage(body []byte, order binary.ByteOrder) (GapSubmessage, error) {
	var g GapSubmessage
	var err error
	g.ReaderId, body, err = DecodeEntityId(body)
	if err != nil {
		return GapSubmessage{}, err
	}
	g.WriterId, body, err = DecodeEntityId(body)
	if err != nil {
		return GapSubmessage{}, err
	}
	g.GapStart, body, err = DecodeSequenceNumber(body, order)
	if err != nil {
		return GapSubmessage{}, err
	}
	g.GapList, _, err = DecodeSequenceNumberSet(body, order)
	if err != nil {
		return GapSubmessage{}, err
	}
	return g, nil
}

// InfoTimestampSubmessage carries the wall-clock time the writer appended
// the following submessages to the message.
type InfoTimestampSubmessage struct {
	InvalidateFlag bool
	Seconds        uint32
	Fraction       uint32
}

func (t InfoTimestampSubmessage) Kind() byte { return SubmessageKindInfoTimestamp }

func (t InfoTimestampSubmessage) flags() byte {
	return flagsToByte([]bool{false, t.InvalidateFlag})
}

func (t InfoTimestampSubmessage) encodeBody(buf []byte, order binary.ByteOrder) []byte {
	if t.InvalidateFlag {
		return buf
	}
	var tmp [8]byte
	order.PutUint32(tmp[0:4], t.Seconds)
	order.PutUint32(tmp[4:8], t.Fraction)
	return append(buf, tmp[:]...)
}

func decodeInfoTimestampSubmessage(body []byte, order binary.ByteOrder, flags byte) (InfoTimestampSubmessage, error) {
	t := InfoTimestampSubmessage{InvalidateFlag: isBitSet(flags, 1)}
	if t.InvalidateFlag {
		return t, nil
	}
	if len(body) < 8 {
		return InfoTimestampSubmessage{}, ErrShortBuffer
	}
	t.Seconds = order.Uint32(body[0:4])
	t.Fraction = order.Uint32(body[4:8])
	return t, nil
}

// PadSubmessage carries no information; it pads a message to an alignment
// boundary.
type PadSubmessage struct{}

func (PadSubmessage) Kind() byte                                       { return SubmessageKindPad }
func (PadSubmessage) flags() byte                                      { return 0 }
func (PadSubmessage) encodeBody(buf []byte, _ binary.ByteOrder) []byte { return buf }
