package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

func testGuid(entityKey byte) rtpstypes.GUID {
	return rtpstypes.GUID{
		Prefix:   rtpstypes.GuidPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		EntityId: rtpstypes.EntityId{Key: [3]byte{0, 0, entityKey}, Kind: rtpstypes.EntityKindUserDefinedWriterKey},
	}
}

func TestStatelessWriterSendsDataForEveryLocator(t *testing.T) {
	w := NewStatelessWriter(testGuid(1), rtpstypes.ReliabilityBestEffort)
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("hello"), rtpstypes.InstanceHandle{})

	rl := endpoint.NewReaderLocator(rtpstypes.Locator{}, false)
	w.AddReaderLocator(rl)

	var sent []wire.DataSubmessage
	w.SendUnsentChanges(
		func(_ rtpstypes.Locator, d wire.DataSubmessage) { sent = append(sent, d) },
		func(_ rtpstypes.Locator, g wire.GapSubmessage) { t.Fatalf("unexpected gap %+v", g) },
	)

	require.Len(t, sent, 1)
	assert.Equal(t, []byte("hello"), sent[0].SerializedPayload)
}

func TestStatelessWriterSendsGapForTrimmedChange(t *testing.T) {
	w := NewStatelessWriter(testGuid(1), rtpstypes.ReliabilityBestEffort)
	c1 := w.NewChange(rtpstypes.ChangeKindAlive, []byte("a"), rtpstypes.InstanceHandle{})
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("b"), rtpstypes.InstanceHandle{})
	w.Cache.RemoveChangesUpTo(c1.SequenceNumber)

	rl := endpoint.NewReaderLocator(rtpstypes.Locator{}, false)
	w.AddReaderLocator(rl)

	var gaps []wire.GapSubmessage
	var data []wire.DataSubmessage
	w.SendUnsentChanges(
		func(_ rtpstypes.Locator, d wire.DataSubmessage) { data = append(data, d) },
		func(_ rtpstypes.Locator, g wire.GapSubmessage) { gaps = append(gaps, g) },
	)

	require.Len(t, gaps, 1)
	assert.Equal(t, c1.SequenceNumber, gaps[0].GapStart)
	require.Len(t, data, 1)
	assert.Equal(t, []byte("b"), data[0].SerializedPayload)
}

func TestStatefulWriterSendUnsentChangesPerMatchedReader(t *testing.T) {
	w := NewStatefulWriter(testGuid(1), rtpstypes.ReliabilityReliable)
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("x"), rtpstypes.InstanceHandle{})

	rp := endpoint.NewReaderProxy(testGuid(2), rtpstypes.EntityIdUnknown, nil, nil, false)
	w.MatchedReaderAdd(rp)

	var sent []wire.DataSubmessage
	w.SendUnsentChanges(
		func(_ *endpoint.ReaderProxy, d wire.DataSubmessage) { sent = append(sent, d) },
		func(_ *endpoint.ReaderProxy, g wire.GapSubmessage) { t.Fatalf("unexpected gap %+v", g) },
	)
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("x"), sent[0].SerializedPayload)

	// a second call with no new changes sends nothing further
	sent = nil
	w.SendUnsentChanges(
		func(_ *endpoint.ReaderProxy, d wire.DataSubmessage) { sent = append(sent, d) },
		func(_ *endpoint.ReaderProxy, g wire.GapSubmessage) {},
	)
	assert.Empty(t, sent)
}

func TestStatefulWriterSendHeartbeatUsesCacheRange(t *testing.T) {
	w := NewStatefulWriter(testGuid(1), rtpstypes.ReliabilityReliable)
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("a"), rtpstypes.InstanceHandle{})
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("b"), rtpstypes.InstanceHandle{})

	readerGuid := testGuid(2)
	rp := endpoint.NewReaderProxy(readerGuid, rtpstypes.EntityIdUnknown, nil, nil, false)
	w.MatchedReaderAdd(rp)

	var hb wire.HeartbeatSubmessage
	w.SendHeartbeat(func(_ *endpoint.ReaderProxy, h wire.HeartbeatSubmessage) { hb = h })

	assert.Equal(t, rtpstypes.SequenceNumber(1), hb.FirstSN)
	assert.Equal(t, rtpstypes.SequenceNumber(2), hb.LastSN)
	assert.Equal(t, int32(1), hb.Count)
	assert.Equal(t, readerGuid.EntityId, hb.ReaderId)

	// pacing suppresses an immediate repeat until HeartbeatPeriod elapses
	hb = wire.HeartbeatSubmessage{}
	w.SendHeartbeat(func(_ *endpoint.ReaderProxy, h wire.HeartbeatSubmessage) { hb = h })
	assert.Equal(t, int32(0), hb.Count)

	w.HeartbeatPeriod = 0
	w.SendHeartbeat(func(_ *endpoint.ReaderProxy, h wire.HeartbeatSubmessage) { hb = h })
	assert.Equal(t, int32(2), hb.Count)
}

func TestStatefulWriterProcessAckNackUpdatesReaderProxy(t *testing.T) {
	w := NewStatefulWriter(testGuid(1), rtpstypes.ReliabilityReliable)
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("a"), rtpstypes.InstanceHandle{})
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("b"), rtpstypes.InstanceHandle{})
	w.NewChange(rtpstypes.ChangeKindAlive, []byte("c"), rtpstypes.InstanceHandle{})

	readerGuid := testGuid(2)
	rp := endpoint.NewReaderProxy(readerGuid, rtpstypes.EntityIdUnknown, nil, nil, false)
	w.MatchedReaderAdd(rp)

	ackNack := wire.AckNackSubmessage{
		ReaderSNState: wire.NewSequenceNumberSet(2, []rtpstypes.SequenceNumber{3}),
		Count:         1,
	}
	w.ProcessAckNack(readerGuid, ackNack)

	assert.Equal(t, rtpstypes.SequenceNumber(1), rp.HighestAcked())
	assert.Equal(t, []rtpstypes.SequenceNumber{3}, rp.RequestedChanges())

	var sent []wire.DataSubmessage
	w.SendRequestedChanges(
		func(_ *endpoint.ReaderProxy, d wire.DataSubmessage) { sent = append(sent, d) },
		func(_ *endpoint.ReaderProxy, g wire.GapSubmessage) {},
	)
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("c"), sent[0].SerializedPayload)
}

func TestStatefulWriterMatchedReaderRemove(t *testing.T) {
	w := NewStatefulWriter(testGuid(1), rtpstypes.ReliabilityReliable)
	rp := endpoint.NewReaderProxy(testGuid(2), rtpstypes.EntityIdUnknown, nil, nil, false)
	w.MatchedReaderAdd(rp)

	_, ok := w.MatchedReaderLookup(rp.RemoteReaderGuid)
	require.True(t, ok)

	w.MatchedReaderRemove(rp.RemoteReaderGuid)
	_, ok = w.MatchedReaderLookup(rp.RemoteReaderGuid)
	assert.False(t, ok)
}
