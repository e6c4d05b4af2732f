// Package cache implements the RTPS history cache: the ordered store of
// CacheChanges that backs every writer and reader endpoint.
package cache

import (
	"sort"
	"sync"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// SampleState records whether a reader has already returned a change to
// the application via read/take.
type SampleState int

const (
	SampleStateNotRead SampleState = iota
	SampleStateRead
)

// ViewState records whether a change is the first the reader has seen for
// its instance.
type ViewState int

const (
	ViewStateNew ViewState = iota
	ViewStateNotNew
)

// InstanceState tracks liveliness of the instance a change belongs to, as
// observed by a reader.
type InstanceState int

const (
	InstanceStateAlive InstanceState = iota
	InstanceStateNotAliveDisposed
	InstanceStateNotAliveNoWriters
)

// CacheChange is a single sample held in a HistoryCache: the unit the RTPS
// reliability protocol tracks, acknowledges, and retransmits.
type CacheChange struct {
	Kind           rtpstypes.ChangeKind
	WriterGuid     rtpstypes.GUID
	InstanceHandle rtpstypes.InstanceHandle
	SequenceNumber rtpstypes.SequenceNumber
	Data           []byte
	InlineQos      []byte

	SampleState   SampleState
	ViewState     ViewState
	InstanceState InstanceState
}

// HistoryCache is the ordered, per-endpoint store of CacheChanges. Writers
// append changes as they are written; readers append changes as they are
// received. Entries are kept sorted by sequence number, since both writer
// and reader-side algorithms repeatedly need get-min/get-max and
// range-style access.
type HistoryCache struct {
	mu      sync.RWMutex
	changes []*CacheChange
}

// NewHistoryCache returns an empty cache.
func NewHistoryCache() *HistoryCache {
	return &HistoryCache{}
}

// AddChange inserts a change in sequence-number order. If a change with the
// same writer GUID and sequence number is already present, the call is a
// no-op: the reader side must tolerate duplicate DATA delivery without
// growing the cache.
func (hc *HistoryCache) AddChange(c *CacheChange) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	i := sort.Search(len(hc.changes), func(i int) bool {
		return hc.changes[i].SequenceNumber >= c.SequenceNumber
	})
	if i < len(hc.changes) && hc.changes[i].SequenceNumber == c.SequenceNumber &&
		hc.changes[i].WriterGuid == c.WriterGuid {
		return
	}
	hc.changes = append(hc.changes, nil)
	copy(hc.changes[i+1:], hc.changes[i:])
	hc.changes[i] = c
}

// RemoveChange removes every change for which pred returns true.
func (hc *HistoryCache) RemoveChange(pred func(*CacheChange) bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	kept := hc.changes[:0]
	for _, c := range hc.changes {
		if !pred(c) {
			kept = append(kept, c)
		}
	}
	hc.changes = kept
}

// RemoveChangesUpTo drops every change with sequence number <= sn, as done
// once a writer has confirmed all matched readers have acknowledged it.
func (hc *HistoryCache) RemoveChangesUpTo(sn rtpstypes.SequenceNumber) {
	hc.RemoveChange(func(c *CacheChange) bool { return c.SequenceNumber <= sn })
}

// GetChange returns the change at the given sequence number, if present.
func (hc *HistoryCache) GetChange(sn rtpstypes.SequenceNumber) (*CacheChange, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	i := sort.Search(len(hc.changes), func(i int) bool {
		return hc.changes[i].SequenceNumber >= sn
	})
	if i < len(hc.changes) && hc.changes[i].SequenceNumber == sn {
		return hc.changes[i], true
	}
	return nil, false
}

// GetSeqNumMin returns the lowest sequence number held, or
// SequenceNumberUnknown if the cache is empty.
func (hc *HistoryCache) GetSeqNumMin() rtpstypes.SequenceNumber {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if len(hc.changes) == 0 {
		return rtpstypes.SequenceNumberUnknown
	}
	return hc.changes[0].SequenceNumber
}

// GetSeqNumMax returns the highest sequence number held, or
// SequenceNumberUnknown if the cache is empty.
func (hc *HistoryCache) GetSeqNumMax() rtpstypes.SequenceNumber {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if len(hc.changes) == 0 {
		return rtpstypes.SequenceNumberUnknown
	}
	return hc.changes[len(hc.changes)-1].SequenceNumber
}

// Changes returns a snapshot of every change currently held, in sequence
// order. The returned slice is owned by the caller.
func (hc *HistoryCache) Changes() []*CacheChange {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := make([]*CacheChange, len(hc.changes))
	copy(out, hc.changes)
	return out
}

// Count returns the number of changes currently held.
func (hc *HistoryCache) Count() int {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.changes)
}

// Read returns changes matching the given sample/view/instance state
// filters and marks each returned change as read. Passing a nil predicate slice
// element means "don't filter on this dimension".
func (hc *HistoryCache) Read(sampleStates []SampleState, viewStates []ViewState, instanceStates []InstanceState) []*CacheChange {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var out []*CacheChange
	for _, c := range hc.changes {
		if !matchesState(c, sampleStates, viewStates, instanceStates) {
			continue
		}
		out = append(out, c)
		c.SampleState = SampleStateRead
	}
	return out
}

// Take behaves like Read but additionally removes the matched changes from
// the cache, as DDS take() semantics require.
func (hc *HistoryCache) Take(sampleStates []SampleState, viewStates []ViewState, instanceStates []InstanceState) []*CacheChange {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var out []*CacheChange
	kept := hc.changes[:0]
	for _, c := range hc.changes {
		if matchesState(c, sampleStates, viewStates, instanceStates) {
			out = append(out, c)
			continue
		}
		kept = append(kept, c)
	}
	hc.changes = kept
	return out
}

func matchesState(c *CacheChange, sampleStates []SampleState, viewStates []ViewState, instanceStates []InstanceState) bool {
	if len(sampleStates) > 0 && !containsSample(sampleStates, c.SampleState) {
		return false
	}
	if len(viewStates) > 0 && !containsView(viewStates, c.ViewState) {
		return false
	}
	if len(instanceStates) > 0 && !containsInstance(instanceStates, c.InstanceState) {
		return false
	}
	return true
}

func containsSample(s []SampleState, v SampleState) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsView(s []ViewState, v ViewState) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsInstance(s []InstanceState, v InstanceState) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
