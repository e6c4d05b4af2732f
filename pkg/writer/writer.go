// Package writer implements the RTPS writer-side reliability behavior:
// StatelessWriter (fan-out to a list of ReaderLocators, typically used by
// SPDP) and StatefulWriter (per-matched-reader ReaderProxy tracking, used
// by SEDP and user endpoints), both driving DATA/GAP/HEARTBEAT emission
// from a shared HistoryCache.
package writer

import (
	"sync"
	"time"

	"github.com/odin-rtps/rtps/pkg/cache"
	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

// Defaults for the timing parameters DDSI-RTPS 2.4 section 8.4.7.1 assigns
// to a reliable StatefulWriter. HeartbeatPeriod is kept short relative to
// the typical DDS default (a few seconds) to match the participant's own
// 200ms protocol tick.
const (
	defaultHeartbeatPeriod           = 1 * time.Second
	defaultNackResponseDelay         = 200 * time.Millisecond
	defaultNackSuppressionDuration   = 0
	defaultDataMaxSizeSerialized     = 0
)

func dataSubmessageFor(c *cache.CacheChange, readerId rtpstypes.EntityId) wire.DataSubmessage {
	var inlineQos wire.ParameterList
	dataFlag, keyFlag := true, false
	switch c.Kind {
	case rtpstypes.ChangeKindNotAliveDisposed:
		dataFlag, keyFlag = false, true
		inlineQos.Parameters = append(inlineQos.Parameters, wire.Parameter{ID: wire.PIDStatusInfo, Value: []byte{wire.StatusInfoDisposedFlag, 0, 0, 0}})
	case rtpstypes.ChangeKindNotAliveUnregistered:
		dataFlag, keyFlag = false, true
		inlineQos.Parameters = append(inlineQos.Parameters, wire.Parameter{ID: wire.PIDStatusInfo, Value: []byte{wire.StatusInfoUnregisteredFlag, 0, 0, 0}})
	}
	return wire.DataSubmessage{
		InlineQosFlag:     len(inlineQos.Parameters) > 0,
		DataFlag:          dataFlag,
		KeyFlag:           keyFlag,
		ReaderId:          readerId,
		WriterId:          c.WriterGuid.EntityId,
		WriterSN:          c.SequenceNumber,
		InlineQos:         inlineQos,
		SerializedPayload: c.Data,
	}
}

// StatelessWriter fans a HistoryCache out to a fixed set of ReaderLocators
// without tracking individual reader acknowledgment; used for SPDP, where
// participants are not yet matched endpoints.
type StatelessWriter struct {
	mu sync.Mutex

	Guid        rtpstypes.GUID
	Reliability rtpstypes.ReliabilityKind
	Cache       *cache.HistoryCache
	Locators    []*endpoint.ReaderLocator
}

// NewStatelessWriter returns a writer backed by its own empty cache.
func NewStatelessWriter(guid rtpstypes.GUID, reliability rtpstypes.ReliabilityKind) *StatelessWriter {
	return &StatelessWriter{Guid: guid, Reliability: reliability, Cache: cache.NewHistoryCache()}
}

// AddReaderLocator registers a new destination locator.
func (w *StatelessWriter) AddReaderLocator(rl *endpoint.ReaderLocator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Locators = append(w.Locators, rl)
}

// NewChange appends a new sample to the writer's history and returns it.
func (w *StatelessWriter) NewChange(kind rtpstypes.ChangeKind, data []byte, instance rtpstypes.InstanceHandle) *cache.CacheChange {
	w.mu.Lock()
	defer w.mu.Unlock()

	sn := w.Cache.GetSeqNumMax() + 1
	if w.Cache.GetSeqNumMax() == rtpstypes.SequenceNumberUnknown {
		sn = 1
	}
	c := &cache.CacheChange{
		Kind:           kind,
		WriterGuid:     w.Guid,
		InstanceHandle: instance,
		SequenceNumber: sn,
		Data:           data,
	}
	w.Cache.AddChange(c)
	return c
}

// SendUnsentChanges drives every locator's unsent-change queue, calling
// sendData for changes still in the cache and sendGap for ones already
// trimmed away.
func (w *StatelessWriter) SendUnsentChanges(sendData func(rtpstypes.Locator, wire.DataSubmessage), sendGap func(rtpstypes.Locator, wire.GapSubmessage)) {
	lastSN := w.Cache.GetSeqNumMax()
	if lastSN == rtpstypes.SequenceNumberUnknown {
		return
	}

	w.mu.Lock()
	locators := make([]*endpoint.ReaderLocator, len(w.Locators))
	copy(locators, w.Locators)
	w.mu.Unlock()

	for _, rl := range locators {
		for {
			sn, ok := rl.NextUnsentChange(lastSN)
			if !ok {
				break
			}
			if c, found := w.Cache.GetChange(sn); found {
				sendData(rl.Locator(), dataSubmessageFor(c, rtpstypes.EntityIdUnknown))
			} else {
				sendGap(rl.Locator(), wire.GapSubmessage{
					ReaderId: rtpstypes.EntityIdUnknown,
					WriterId: rtpstypes.EntityIdUnknown,
					GapStart: sn,
					GapList:  wire.NewSequenceNumberSet(sn, nil),
				})
			}
		}
	}
}

// StatefulWriter tracks one ReaderProxy per matched reader and drives the
// full reliable protocol loop: unsent-change delivery, periodic HEARTBEAT,
// and ACKNACK-triggered retransmission.
type StatefulWriter struct {
	mu sync.Mutex

	Guid           rtpstypes.GUID
	Reliability    rtpstypes.ReliabilityKind
	Cache          *cache.HistoryCache
	matchedReaders map[rtpstypes.GUID]*endpoint.ReaderProxy
	heartbeatCount int32

	// PushMode mirrors 8.4.7.1: true means changes are pushed to readers
	// as soon as they are written (SendUnsentChanges), rather than held
	// back until the reader nacks for them.
	PushMode bool
	// HeartbeatPeriod bounds how often SendHeartbeat will actually emit a
	// HEARTBEAT to a given matched reader.
	HeartbeatPeriod time.Duration
	// NackResponseDelay and NackSuppressionDuration are carried for
	// protocol completeness; this writer answers ACKNACK-requested
	// changes as soon as SendRequestedChanges next runs rather than
	// delaying or coalescing repair traffic.
	NackResponseDelay       time.Duration
	NackSuppressionDuration time.Duration
	// DataMaxSizeSerialized is likewise carried for protocol completeness;
	// NewChange does not check a change's size against it.
	DataMaxSizeSerialized int
}

// NewStatefulWriter returns a writer with no matched readers yet.
func NewStatefulWriter(guid rtpstypes.GUID, reliability rtpstypes.ReliabilityKind) *StatefulWriter {
	return &StatefulWriter{
		Guid:                    guid,
		Reliability:             reliability,
		Cache:                   cache.NewHistoryCache(),
		matchedReaders:          make(map[rtpstypes.GUID]*endpoint.ReaderProxy),
		PushMode:                true,
		HeartbeatPeriod:         defaultHeartbeatPeriod,
		NackResponseDelay:       defaultNackResponseDelay,
		NackSuppressionDuration: defaultNackSuppressionDuration,
		DataMaxSizeSerialized:   defaultDataMaxSizeSerialized,
	}
}

// MatchedReaderAdd registers rp as a newly matched reader.
func (w *StatefulWriter) MatchedReaderAdd(rp *endpoint.ReaderProxy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.matchedReaders[rp.RemoteReaderGuid] = rp
}

// MatchedReaderRemove drops a reader that is no longer matched, e.g. after
// discovery reports it left.
func (w *StatefulWriter) MatchedReaderRemove(guid rtpstypes.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.matchedReaders, guid)
}

// MatchedReaderLookup returns the proxy for guid, if matched.
func (w *StatefulWriter) MatchedReaderLookup(guid rtpstypes.GUID) (*endpoint.ReaderProxy, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rp, ok := w.matchedReaders[guid]
	return rp, ok
}

func (w *StatefulWriter) snapshotReaders() []*endpoint.ReaderProxy {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*endpoint.ReaderProxy, 0, len(w.matchedReaders))
	for _, rp := range w.matchedReaders {
		out = append(out, rp)
	}
	return out
}

// NewChange appends a new sample to the writer's history and returns it.
func (w *StatefulWriter) NewChange(kind rtpstypes.ChangeKind, data []byte, instance rtpstypes.InstanceHandle) *cache.CacheChange {
	w.mu.Lock()
	defer w.mu.Unlock()

	max := w.Cache.GetSeqNumMax()
	sn := max + 1
	if max == rtpstypes.SequenceNumberUnknown {
		sn = 1
	}
	c := &cache.CacheChange{
		Kind:           kind,
		WriterGuid:     w.Guid,
		InstanceHandle: instance,
		SequenceNumber: sn,
		Data:           data,
	}
	w.Cache.AddChange(c)
	return c
}

// SendUnsentChanges implements 8.4.9.1.4/8.4.9.2.4: for each matched
// reader, emit DATA for every unsent change still in the cache, or GAP for
// ones that have already been trimmed.
func (w *StatefulWriter) SendUnsentChanges(sendData func(*endpoint.ReaderProxy, wire.DataSubmessage), sendGap func(*endpoint.ReaderProxy, wire.GapSubmessage)) {
	lastSN := w.Cache.GetSeqNumMax()
	if lastSN == rtpstypes.SequenceNumberUnknown {
		return
	}
	for _, rp := range w.snapshotReaders() {
		for {
			sn, ok := rp.NextUnsentChange(lastSN)
			if !ok {
				break
			}
			if c, found := w.Cache.GetChange(sn); found {
				sendData(rp, dataSubmessageFor(c, rp.RemoteReaderGuid.EntityId))
			} else {
				sendGap(rp, wire.GapSubmessage{
					ReaderId: rp.RemoteReaderGuid.EntityId,
					WriterId: w.Guid.EntityId,
					GapStart: sn,
					GapList:  wire.NewSequenceNumberSet(sn, nil),
				})
			}
		}
	}
}

// SendRequestedChanges implements 8.4.8.2.10: deliver whatever a reader
// has explicitly asked for via ACKNACK, after SendUnsentChanges has run.
func (w *StatefulWriter) SendRequestedChanges(sendData func(*endpoint.ReaderProxy, wire.DataSubmessage), sendGap func(*endpoint.ReaderProxy, wire.GapSubmessage)) {
	for _, rp := range w.snapshotReaders() {
		for {
			sn, ok := rp.NextRequestedChange()
			if !ok {
				break
			}
			if c, found := w.Cache.GetChange(sn); found {
				sendData(rp, dataSubmessageFor(c, rp.RemoteReaderGuid.EntityId))
			} else {
				sendGap(rp, wire.GapSubmessage{
					ReaderId: rp.RemoteReaderGuid.EntityId,
					WriterId: w.Guid.EntityId,
					GapStart: sn,
					GapList:  wire.NewSequenceNumberSet(sn, nil),
				})
			}
		}
	}
}

// SendHeartbeat implements 8.4.9.2.7: announce the sequence number range
// currently held to every matched reader whose HeartbeatPeriod has elapsed,
// soliciting ACKNACK. Each reader is addressed individually and paced
// independently, so a reader that just joined is not starved by one that
// was heartbeated a moment ago.
func (w *StatefulWriter) SendHeartbeat(send func(*endpoint.ReaderProxy, wire.HeartbeatSubmessage)) {
	first := w.Cache.GetSeqNumMin()
	last := w.Cache.GetSeqNumMax()
	if first == rtpstypes.SequenceNumberUnknown {
		first = 1
	}
	if last == rtpstypes.SequenceNumberUnknown {
		last = 0
	}

	now := time.Now()
	for _, rp := range w.snapshotReaders() {
		if !rp.HeartbeatDue(w.HeartbeatPeriod, now) {
			continue
		}

		w.mu.Lock()
		w.heartbeatCount++
		count := w.heartbeatCount
		w.mu.Unlock()

		send(rp, wire.HeartbeatSubmessage{
			ReaderId: rp.RemoteReaderGuid.EntityId,
			WriterId: w.Guid.EntityId,
			FirstSN:  first,
			LastSN:   last,
			Count:    count,
		})
		rp.MarkHeartbeatSent(now)
	}
}

// ProcessAckNack implements 8.4.9.2.8: fold an incoming ACKNACK into the
// matched reader's proxy state. A count that is not strictly greater than
// the last one processed is a stale or reordered duplicate and is ignored,
// per 8.4.7.4: it must never move highestAcked backward.
func (w *StatefulWriter) ProcessAckNack(readerGuid rtpstypes.GUID, ackNack wire.AckNackSubmessage) {
	rp, ok := w.MatchedReaderLookup(readerGuid)
	if !ok {
		return
	}
	if !rp.AckNackReceived(ackNack.Count) {
		return
	}
	rp.AckedChangesSet(ackNack.ReaderSNState.Base - 1)
	rp.RequestedChangesSet(ackNack.ReaderSNState.Bits, w.Cache.GetSeqNumMax())
}
