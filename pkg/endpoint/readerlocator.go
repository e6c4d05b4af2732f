// Package endpoint implements the per-matched-peer bookkeeping that sits
// between a HistoryCache and the wire: ReaderLocator for stateless writers,
// ReaderProxy for stateful writers, and WriterProxy for stateful readers.
package endpoint

import (
	"sort"
	"sync"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// ReaderLocator tracks, for one destination locator of a BestEffort
// stateless writer, which sequence numbers have been sent and which have
// been explicitly requested for resend.
type ReaderLocator struct {
	mu sync.Mutex

	locator          rtpstypes.Locator
	expectsInlineQos bool
	lastSent         rtpstypes.SequenceNumber
	requestedChanges []rtpstypes.SequenceNumber
}

// NewReaderLocator returns a locator with no changes sent yet.
func NewReaderLocator(locator rtpstypes.Locator, expectsInlineQos bool) *ReaderLocator {
	return &ReaderLocator{
		locator:          locator,
		expectsInlineQos: expectsInlineQos,
		lastSent:         0,
	}
}

// UnsentChangesReset rearms this locator to resend its writer's entire
// available history, as if newly matched. Used when a previously
// unreachable reader rejoins and needs everything resent rather than just
// what was produced after the rejoin.
func (rl *ReaderLocator) UnsentChangesReset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSent = 0
	rl.requestedChanges = nil
}

func (rl *ReaderLocator) Locator() rtpstypes.Locator { return rl.locator }

func (rl *ReaderLocator) ExpectsInlineQos() bool { return rl.expectsInlineQos }

// NextUnsentChange returns the next sequence number this locator has not
// yet been sent, up to lastChangeSeqNum, or false once it is caught up.
func (rl *ReaderLocator) NextUnsentChange(lastChangeSeqNum rtpstypes.SequenceNumber) (rtpstypes.SequenceNumber, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lastSent < lastChangeSeqNum {
		rl.lastSent++
		return rl.lastSent, true
	}
	return 0, false
}

// UnsentChanges lists every sequence number not yet sent, up to
// lastChangeSeqNum.
func (rl *ReaderLocator) UnsentChanges(lastChangeSeqNum rtpstypes.SequenceNumber) []rtpstypes.SequenceNumber {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var out []rtpstypes.SequenceNumber
	for sn := rl.lastSent + 1; sn <= lastChangeSeqNum; sn++ {
		out = append(out, sn)
	}
	return out
}

// RequestedChangesSet records a reader's explicit resend request (made via
// the best-effort equivalent of ACKNACK-driven repair), ignoring any
// sequence number beyond what the writer has actually written.
func (rl *ReaderLocator) RequestedChangesSet(reqSeqNums []rtpstypes.SequenceNumber, lastChangeSeqNum rtpstypes.SequenceNumber) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, sn := range reqSeqNums {
		if sn <= lastChangeSeqNum {
			rl.requestedChanges = append(rl.requestedChanges, sn)
		}
	}
}

// NextRequestedChange pops the lowest pending requested sequence number.
func (rl *ReaderLocator) NextRequestedChange() (rtpstypes.SequenceNumber, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.requestedChanges) == 0 {
		return 0, false
	}
	sort.Slice(rl.requestedChanges, func(i, j int) bool { return rl.requestedChanges[i] < rl.requestedChanges[j] })
	sn := rl.requestedChanges[0]
	rl.requestedChanges = rl.requestedChanges[1:]
	return sn, true
}

// RequestedChanges returns a snapshot of the still-pending requested
// sequence numbers.
func (rl *ReaderLocator) RequestedChanges() []rtpstypes.SequenceNumber {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	out := make([]rtpstypes.SequenceNumber, len(rl.requestedChanges))
	copy(out, rl.requestedChanges)
	return out
}
