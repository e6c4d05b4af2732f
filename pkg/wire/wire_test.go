package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

func TestMessageHeaderRoundTrip(t *testing.T) {
	h := MessageHeader{
		Version:    rtpstypes.ProtocolVersion{Major: 2, Minor: 4},
		VendorID:   rtpstypes.VendorId{9, 8},
		GuidPrefix: rtpstypes.GuidPrefix{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3},
	}
	buf := h.Encode(nil)
	assert.Len(t, buf, MessageHeaderLength)

	got, rest, err := DecodeMessageHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
}

func TestDecodeMessageHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, MessageHeaderLength)
	copy(buf, []byte("XXXX"))
	_, _, err := DecodeMessageHeader(buf)
	assert.ErrorIs(t, err, ErrBadProtocol)
}

func TestParameterListRoundTrip(t *testing.T) {
	pl := ParameterList{Parameters: []Parameter{
		{ID: 0x02, Value: []byte{15, 16, 17, 18}},
		{ID: 0x03, Value: []byte{25, 26, 27}},
	}}
	buf := pl.Encode(nil, binary.LittleEndian)

	got, rest, err := DecodeParameterList(buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, got.Parameters, 2)
	assert.Equal(t, []byte{15, 16, 17, 18}, got.Parameters[0].Value)
	// odd-length value is zero-padded out to a multiple of 4 on the wire
	assert.Equal(t, []byte{25, 26, 27, 0}, got.Parameters[1].Value)
}

func TestSequenceNumberSetRoundTrip(t *testing.T) {
	set := NewSequenceNumberSet(10, []rtpstypes.SequenceNumber{10, 12, 15})
	buf := set.Encode(nil, binary.LittleEndian)

	got, rest, err := DecodeSequenceNumberSet(buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, rtpstypes.SequenceNumber(10), got.Base)
	assert.ElementsMatch(t, []rtpstypes.SequenceNumber{10, 12, 15}, got.Bits)
}

func TestSequenceNumberSetEmpty(t *testing.T) {
	set := NewSequenceNumberSet(10, nil)
	buf := set.Encode(nil, binary.LittleEndian)

	got, _, err := DecodeSequenceNumberSet(buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, rtpstypes.SequenceNumber(10), got.Base)
	assert.Empty(t, got.Bits)
}

func TestHeartbeatSubmessageRoundTripThroughMessage(t *testing.T) {
	msg := Message{
		Header: MessageHeader{
			Version:    rtpstypes.ProtocolVersion2_4,
			VendorID:   rtpstypes.VendorIdUnknown,
			GuidPrefix: rtpstypes.GuidPrefix{1, 2, 3},
		},
		Submessages: []Submessage{
			HeartbeatSubmessage{
				ReaderId: rtpstypes.EntityIdUnknown,
				WriterId: rtpstypes.EntityIdParticipant,
				FirstSN:  1,
				LastSN:   3,
				Count:    5,
			},
		},
	}

	buf := msg.Encode()
	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, got.Submessages, 1)

	hb, ok := got.Submessages[0].(HeartbeatSubmessage)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(1), hb.FirstSN)
	assert.Equal(t, rtpstypes.SequenceNumber(3), hb.LastSN)
	assert.Equal(t, int32(5), hb.Count)
}

func TestGapSubmessageRoundTripThroughMessage(t *testing.T) {
	msg := Message{
		Header: MessageHeader{Version: rtpstypes.ProtocolVersion2_4},
		Submessages: []Submessage{
			GapSubmessage{
				ReaderId: rtpstypes.EntityIdUnknown,
				WriterId: rtpstypes.EntityIdParticipant,
				GapStart: 5,
				GapList:  NewSequenceNumberSet(10, nil),
			},
		},
	}

	buf := msg.Encode()
	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, got.Submessages, 1)

	gap, ok := got.Submessages[0].(GapSubmessage)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(5), gap.GapStart)
	assert.Equal(t, rtpstypes.SequenceNumber(10), gap.GapList.Base)
}

func TestDataSubmessageRoundTripWithPayload(t *testing.T) {
	msg := Message{
		Header: MessageHeader{Version: rtpstypes.ProtocolVersion2_4},
		Submessages: []Submessage{
			DataSubmessage{
				DataFlag:          true,
				ReaderId:          rtpstypes.EntityIdUnknown,
				WriterId:          rtpstypes.EntityIdParticipant,
				WriterSN:          7,
				SerializedPayload: []byte{1, 2, 3, 4},
			},
		},
	}

	buf := msg.Encode()
	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, got.Submessages, 1)

	d, ok := got.Submessages[0].(DataSubmessage)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(7), d.WriterSN)
	assert.Equal(t, []byte{1, 2, 3, 4}, d.SerializedPayload)
}

func TestDecodeMessageSkipsUnknownSubmessage(t *testing.T) {
	header := MessageHeader{Version: rtpstypes.ProtocolVersion2_4}
	buf := header.Encode(nil)

	// unknown submessage kind 0x99, length 8, followed by a real PAD
	buf = append(buf, 0x99, 0x01, 8, 0)
	buf = append(buf, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc)
	buf = append(buf, SubmessageKindPad, 0x01, 0, 0)

	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, got.Submessages, 1)
	_, ok := got.Submessages[0].(PadSubmessage)
	assert.True(t, ok)
}
