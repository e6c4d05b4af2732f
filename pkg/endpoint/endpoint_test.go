package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

func TestReaderLocatorNextUnsentChange(t *testing.T) {
	rl := NewReaderLocator(rtpstypes.LocatorInvalid, false)

	sn, ok := rl.NextUnsentChange(2)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(1), sn)

	sn, ok = rl.NextUnsentChange(2)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(2), sn)

	_, ok = rl.NextUnsentChange(2)
	assert.False(t, ok)
}

func TestReaderLocatorNextUnsentChangeResumesAfterAdvance(t *testing.T) {
	rl := NewReaderLocator(rtpstypes.LocatorInvalid, false)

	_, _ = rl.NextUnsentChange(2)
	_, _ = rl.NextUnsentChange(2)
	_, ok := rl.NextUnsentChange(2)
	assert.False(t, ok)

	sn, ok := rl.NextUnsentChange(3)
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(3), sn)
}

func TestReaderLocatorRequestedChangesSetDropsBeyondLastChange(t *testing.T) {
	rl := NewReaderLocator(rtpstypes.LocatorInvalid, false)

	rl.RequestedChangesSet([]rtpstypes.SequenceNumber{1, 2, 3}, 1)

	assert.Equal(t, []rtpstypes.SequenceNumber{1}, rl.RequestedChanges())
}

func TestReaderLocatorUnsentChanges(t *testing.T) {
	rl := NewReaderLocator(rtpstypes.LocatorInvalid, false)

	assert.Equal(t, []rtpstypes.SequenceNumber{1, 2, 3}, rl.UnsentChanges(3))

	_, _ = rl.NextUnsentChange(3)
	assert.Equal(t, []rtpstypes.SequenceNumber{2, 3}, rl.UnsentChanges(3))
}

func TestReaderProxyUnackedChanges(t *testing.T) {
	rp := NewReaderProxy(rtpstypes.GUIDUnknown, rtpstypes.EntityIdUnknown, nil, nil, false)

	rp.AckedChangesSet(2)

	assert.Equal(t, []rtpstypes.SequenceNumber{3, 4}, rp.UnackedChanges(4))
}

func TestReaderProxyNextRequestedChangePopsLowestFirst(t *testing.T) {
	rp := NewReaderProxy(rtpstypes.GUIDUnknown, rtpstypes.EntityIdUnknown, nil, nil, false)
	rp.RequestedChangesSet([]rtpstypes.SequenceNumber{3, 1, 2}, 3)

	sn, ok := rp.NextRequestedChange()
	require.True(t, ok)
	assert.Equal(t, rtpstypes.SequenceNumber(1), sn)
}

func TestWriterProxyMissingChanges(t *testing.T) {
	wp := NewWriterProxy(rtpstypes.GUIDUnknown, nil, nil)

	wp.ReceivedChangeSet(1)
	wp.ReceivedChangeSet(3)
	wp.IrrelevantChangeSet(4)
	wp.ReceivedChangeSet(5)

	assert.Equal(t, []rtpstypes.SequenceNumber{2}, wp.MissingChanges())
	assert.Equal(t, rtpstypes.SequenceNumber(5), wp.AvailableChangesMax())
}

func TestWriterProxyHeartbeatReceivedRejectsStale(t *testing.T) {
	wp := NewWriterProxy(rtpstypes.GUIDUnknown, nil, nil)

	assert.True(t, wp.HeartbeatReceived(1))
	assert.True(t, wp.HeartbeatReceived(2))
	assert.False(t, wp.HeartbeatReceived(2))
	assert.False(t, wp.HeartbeatReceived(1))
}

func TestWriterProxyLostChangesUpdateTombstonesBelowWatermark(t *testing.T) {
	wp := NewWriterProxy(rtpstypes.GUIDUnknown, nil, nil)

	wp.MissingChangesUpdate(5)
	assert.Equal(t, []rtpstypes.SequenceNumber{1, 2, 3, 4, 5}, wp.MissingChanges())

	wp.LostChangesUpdate(4)
	assert.Equal(t, []rtpstypes.SequenceNumber{4, 5}, wp.MissingChanges())

	// a regressed or repeated low watermark is ignored
	wp.LostChangesUpdate(2)
	assert.Equal(t, []rtpstypes.SequenceNumber{4, 5}, wp.MissingChanges())
}

func TestWriterProxyLostChangesUpdatePastAvailableMaxLeavesNothingMissing(t *testing.T) {
	wp := NewWriterProxy(rtpstypes.GUIDUnknown, nil, nil)

	wp.MissingChangesUpdate(3)
	wp.LostChangesUpdate(10)

	assert.Empty(t, wp.MissingChanges())
	assert.Equal(t, rtpstypes.SequenceNumber(9), wp.AvailableChangesMax())
}

func TestReaderProxyAckNackReceivedRejectsStale(t *testing.T) {
	rp := NewReaderProxy(rtpstypes.GUIDUnknown, rtpstypes.EntityIdUnknown, nil, nil, false)

	assert.True(t, rp.AckNackReceived(1))
	assert.True(t, rp.AckNackReceived(2))
	assert.False(t, rp.AckNackReceived(2))
	assert.False(t, rp.AckNackReceived(1))
}

func TestReaderLocatorUnsentChangesReset(t *testing.T) {
	rl := NewReaderLocator(rtpstypes.LocatorInvalid, false)

	_, _ = rl.NextUnsentChange(3)
	_, _ = rl.NextUnsentChange(3)
	assert.Equal(t, []rtpstypes.SequenceNumber{3}, rl.UnsentChanges(3))

	rl.UnsentChangesReset()
	assert.Equal(t, []rtpstypes.SequenceNumber{1, 2, 3}, rl.UnsentChanges(3))
}
