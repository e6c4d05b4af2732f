package endpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// WriterProxy is a stateful reader's view of one matched writer: the
// highest sequence number seen, which sequence numbers are known missing
// (named by a HEARTBEAT but not yet received), and which have already been
// received.
type WriterProxy struct {
	mu sync.Mutex

	RemoteWriterGuid     rtpstypes.GUID
	UnicastLocatorList   []rtpstypes.Locator
	MulticastLocatorList []rtpstypes.Locator

	received           map[rtpstypes.SequenceNumber]struct{}
	availableMax       rtpstypes.SequenceNumber
	lowWatermark       rtpstypes.SequenceNumber
	lastHeartbeat      int32
	haveHeartbeat      bool
	lastHeartbeatFinal bool
	lastAckNackAt      time.Time
}

// NewWriterProxy returns a proxy for a freshly matched writer.
func NewWriterProxy(remoteWriterGuid rtpstypes.GUID, unicast, multicast []rtpstypes.Locator) *WriterProxy {
	return &WriterProxy{
		RemoteWriterGuid:     remoteWriterGuid,
		UnicastLocatorList:   unicast,
		MulticastLocatorList: multicast,
		received:             make(map[rtpstypes.SequenceNumber]struct{}),
		availableMax:         rtpstypes.SequenceNumberUnknown,
		lowWatermark:         1,
	}
}

// ReceivedChangeSet records that sn has been received from this writer.
func (wp *WriterProxy) ReceivedChangeSet(sn rtpstypes.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	wp.received[sn] = struct{}{}
	if sn > wp.availableMax {
		wp.availableMax = sn
	}
}

// IrrelevantChangeSet records a GAP-indicated sequence number as no longer
// relevant, so it is never reported as missing.
func (wp *WriterProxy) IrrelevantChangeSet(sn rtpstypes.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	wp.received[sn] = struct{}{}
	if sn > wp.availableMax {
		wp.availableMax = sn
	}
}

// MissingChanges lists every sequence number between the low watermark and
// AvailableChangesMax that has not been received or marked irrelevant — the
// set an ACKNACK should name. Sequence numbers below the watermark are
// tombstoned as lost by LostChangesUpdate and are never reported here, so a
// writer that has already trimmed its cache is not nacked forever for
// history it can no longer resend.
func (wp *WriterProxy) MissingChanges() []rtpstypes.SequenceNumber {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.availableMax == rtpstypes.SequenceNumberUnknown {
		return nil
	}

	var out []rtpstypes.SequenceNumber
	for sn := wp.lowWatermark; sn <= wp.availableMax; sn++ {
		if _, ok := wp.received[sn]; !ok {
			out = append(out, sn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AvailableChangesMax returns the highest sequence number this writer is
// known to have produced, whether or not it has actually been received.
func (wp *WriterProxy) AvailableChangesMax() rtpstypes.SequenceNumber {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.availableMax
}

// MissingChangesUpdate raises availableMax to lastAvailableSeqNum if it is
// higher than what is already known, as driven by a HEARTBEAT's lastSN
// field: the writer is announcing changes the reader may not have received
// yet, which MissingChanges will now report if still unreceived.
func (wp *WriterProxy) MissingChangesUpdate(lastAvailableSeqNum rtpstypes.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if lastAvailableSeqNum > wp.availableMax {
		wp.availableMax = lastAvailableSeqNum
	}
}

// LostChangesUpdate raises the low watermark to firstAvailableSeqNum, as
// driven by a HEARTBEAT's firstSN field: everything the writer names below
// its own first available sequence number has been trimmed from its cache
// and can never be received, so it is tombstoned as lost rather than left
// to be nacked forever.
func (wp *WriterProxy) LostChangesUpdate(firstAvailableSeqNum rtpstypes.SequenceNumber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if firstAvailableSeqNum <= wp.lowWatermark {
		return
	}
	for sn := range wp.received {
		if sn < firstAvailableSeqNum {
			delete(wp.received, sn)
		}
	}
	wp.lowWatermark = firstAvailableSeqNum
	if wp.availableMax != rtpstypes.SequenceNumberUnknown && wp.availableMax < wp.lowWatermark {
		wp.availableMax = wp.lowWatermark - 1
	}
}

// HeartbeatReceived records the count field of an incoming HEARTBEAT,
// reporting whether it is newer than the last one processed so the reader
// can drop duplicates and out-of-order heartbeats.
func (wp *WriterProxy) HeartbeatReceived(count int32) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.haveHeartbeat && count <= wp.lastHeartbeat {
		return false
	}
	wp.lastHeartbeat = count
	wp.haveHeartbeat = true
	return true
}

// RecordHeartbeatFinal stores whether the most recently accepted HEARTBEAT
// had its FINAL flag set, governing whether an ACKNACK response may be
// suppressed.
func (wp *WriterProxy) RecordHeartbeatFinal(final bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.lastHeartbeatFinal = final
}

// NeedsAckNack reports whether an ACKNACK is still owed to this writer: a
// HEARTBEAT with FINAL clear always asks for one, and any HEARTBEAT leaves
// one owed as long as changes are still missing, per 8.4.12.3.
func (wp *WriterProxy) NeedsAckNack() bool {
	wp.mu.Lock()
	final := wp.lastHeartbeatFinal
	wp.mu.Unlock()
	if !final {
		return true
	}
	return len(wp.MissingChanges()) > 0
}

// AckNackDue reports whether an ACKNACK should be sent to this writer now:
// NeedsAckNack must hold, and at least suppressionDuration must have passed
// since the last one sent, so a reader does not repeat an identical ACKNACK
// faster than the writer could possibly act on it.
func (wp *WriterProxy) AckNackDue(suppressionDuration time.Duration, now time.Time) bool {
	if !wp.NeedsAckNack() {
		return false
	}
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if suppressionDuration <= 0 {
		return true
	}
	return wp.lastAckNackAt.IsZero() || now.Sub(wp.lastAckNackAt) >= suppressionDuration
}

// MarkAckNackSent records that an ACKNACK was just sent to this writer.
func (wp *WriterProxy) MarkAckNackSent(now time.Time) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.lastAckNackAt = now
}
