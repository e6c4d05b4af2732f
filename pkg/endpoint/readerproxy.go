package endpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// ReaderProxy is a stateful writer's view of one matched reader: its
// locators, which changes it has been sent, which it has explicitly
// requested, and the highest sequence number it has acknowledged.
type ReaderProxy struct {
	mu sync.Mutex

	RemoteReaderGuid     rtpstypes.GUID
	RemoteGroupEntityId  rtpstypes.EntityId
	UnicastLocatorList   []rtpstypes.Locator
	MulticastLocatorList []rtpstypes.Locator
	ExpectsInlineQos     bool

	lastSent         rtpstypes.SequenceNumber
	requestedChanges []rtpstypes.SequenceNumber
	highestAcked     rtpstypes.SequenceNumber
	lastAckNackCount int32
	haveAckNack      bool
	lastHeartbeatAt  time.Time
}

// NewReaderProxy returns a proxy for a freshly matched reader; nothing has
// been sent or acknowledged yet.
func NewReaderProxy(remoteReaderGuid rtpstypes.GUID, remoteGroupEntityId rtpstypes.EntityId, unicast, multicast []rtpstypes.Locator, expectsInlineQos bool) *ReaderProxy {
	return &ReaderProxy{
		RemoteReaderGuid:     remoteReaderGuid,
		RemoteGroupEntityId:  remoteGroupEntityId,
		UnicastLocatorList:   unicast,
		MulticastLocatorList: multicast,
		ExpectsInlineQos:     expectsInlineQos,
	}
}

// AckedChangesSet records that the reader has acknowledged every change up
// to and including committedSeqNum, as driven by a HEARTBEAT with no gaps
// or by processing an ACKNACK's readerSNState base.
func (rp *ReaderProxy) AckedChangesSet(committedSeqNum rtpstypes.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.highestAcked = committedSeqNum
}

// NextUnsentChange returns the next sequence number not yet sent to this
// reader, up to lastChangeSeqNum.
func (rp *ReaderProxy) NextUnsentChange(lastChangeSeqNum rtpstypes.SequenceNumber) (rtpstypes.SequenceNumber, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.lastSent < lastChangeSeqNum {
		rp.lastSent++
		return rp.lastSent, true
	}
	return 0, false
}

// UnsentChanges lists every sequence number not yet sent to this reader.
func (rp *ReaderProxy) UnsentChanges(lastChangeSeqNum rtpstypes.SequenceNumber) []rtpstypes.SequenceNumber {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	var out []rtpstypes.SequenceNumber
	for sn := rp.lastSent + 1; sn <= lastChangeSeqNum; sn++ {
		out = append(out, sn)
	}
	return out
}

// RequestedChangesSet records the sequence numbers named by an ACKNACK's
// reader bitmap, dropping anything beyond what the writer has written.
func (rp *ReaderProxy) RequestedChangesSet(reqSeqNums []rtpstypes.SequenceNumber, lastChangeSeqNum rtpstypes.SequenceNumber) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	var kept []rtpstypes.SequenceNumber
	for _, sn := range reqSeqNums {
		if sn <= lastChangeSeqNum {
			kept = append(kept, sn)
		}
	}
	rp.requestedChanges = kept
}

// NextRequestedChange pops the lowest pending requested sequence number.
func (rp *ReaderProxy) NextRequestedChange() (rtpstypes.SequenceNumber, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if len(rp.requestedChanges) == 0 {
		return 0, false
	}
	sort.Slice(rp.requestedChanges, func(i, j int) bool { return rp.requestedChanges[i] < rp.requestedChanges[j] })
	sn := rp.requestedChanges[0]
	rp.requestedChanges = rp.requestedChanges[1:]
	return sn, true
}

// RequestedChanges returns a snapshot of pending requested sequence numbers.
func (rp *ReaderProxy) RequestedChanges() []rtpstypes.SequenceNumber {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	out := make([]rtpstypes.SequenceNumber, len(rp.requestedChanges))
	copy(out, rp.requestedChanges)
	return out
}

// UnackedChanges lists every sequence number sent but not yet acknowledged,
// up to lastChangeSeqNum. The reliability loop retransmits these on
// timeout or in response to a NACK.
func (rp *ReaderProxy) UnackedChanges(lastChangeSeqNum rtpstypes.SequenceNumber) []rtpstypes.SequenceNumber {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	var out []rtpstypes.SequenceNumber
	for sn := rp.highestAcked + 1; sn <= lastChangeSeqNum; sn++ {
		out = append(out, sn)
	}
	return out
}

// HighestAcked returns the highest sequence number this reader has
// acknowledged.
func (rp *ReaderProxy) HighestAcked() rtpstypes.SequenceNumber {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.highestAcked
}

// AckNackReceived records the count field of an incoming ACKNACK, reporting
// whether it is newer than the last one processed. A count that regresses
// or repeats is a stale or reordered duplicate per 8.4.7.4 and must be
// ignored rather than allowed to move highestAcked backward.
func (rp *ReaderProxy) AckNackReceived(count int32) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.haveAckNack && count <= rp.lastAckNackCount {
		return false
	}
	rp.lastAckNackCount = count
	rp.haveAckNack = true
	return true
}

// HeartbeatDue reports whether period has elapsed since the last HEARTBEAT
// sent to this reader, or none has been sent yet.
func (rp *ReaderProxy) HeartbeatDue(period time.Duration, now time.Time) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.lastHeartbeatAt.IsZero() || now.Sub(rp.lastHeartbeatAt) >= period
}

// MarkHeartbeatSent records that a HEARTBEAT was just sent to this reader.
func (rp *ReaderProxy) MarkHeartbeatSent(now time.Time) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.lastHeartbeatAt = now
}
