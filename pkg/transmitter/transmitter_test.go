package transmitter

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

type recordingSender struct {
	sent map[rtpstypes.Locator][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[rtpstypes.Locator][][]byte)}
}

func (s *recordingSender) SendMessage(loc rtpstypes.Locator, data []byte) error {
	s.sent[loc] = append(s.sent[loc], data)
	return nil
}

func TestMessageTransmitterFlushBatchesPerLocator(t *testing.T) {
	sender := newRecordingSender()
	mt := NewMessageTransmitter(zerolog.Nop(), rtpstypes.GuidPrefix{1, 2, 3}, sender)

	locA := rtpstypes.NewLocatorUDPv4([4]byte{127, 0, 0, 1}, 7400)
	locB := rtpstypes.NewLocatorUDPv4([4]byte{127, 0, 0, 1}, 7401)

	mt.Enqueue(locA, wire.HeartbeatSubmessage{Count: 1})
	mt.Enqueue(locA, wire.GapSubmessage{GapStart: 1, GapList: wire.NewSequenceNumberSet(1, nil)})
	mt.Enqueue(locB, wire.HeartbeatSubmessage{Count: 2})

	mt.Flush()

	require.Len(t, sender.sent[locA], 1)
	require.Len(t, sender.sent[locB], 1)

	decoded, err := wire.DecodeMessage(sender.sent[locA][0])
	require.NoError(t, err)
	assert.Len(t, decoded.Submessages, 2)
	assert.Equal(t, rtpstypes.GuidPrefix{1, 2, 3}, decoded.Header.GuidPrefix)
}

func TestMessageTransmitterFlushClearsQueues(t *testing.T) {
	sender := newRecordingSender()
	mt := NewMessageTransmitter(zerolog.Nop(), rtpstypes.GuidPrefix{1, 2, 3}, sender)

	loc := rtpstypes.NewLocatorUDPv4([4]byte{127, 0, 0, 1}, 7400)
	mt.Enqueue(loc, wire.HeartbeatSubmessage{Count: 1})
	mt.Flush()
	mt.Flush()

	assert.Len(t, sender.sent[loc], 1)
}

func TestMessageTransmitterSendNow(t *testing.T) {
	sender := newRecordingSender()
	mt := NewMessageTransmitter(zerolog.Nop(), rtpstypes.GuidPrefix{1, 2, 3}, sender)

	loc := rtpstypes.NewLocatorUDPv4([4]byte{127, 0, 0, 1}, 7400)
	require.NoError(t, mt.SendNow(loc, wire.AckNackSubmessage{Count: 1}))
	require.Len(t, sender.sent[loc], 1)
}
