// Package reader implements the RTPS reader-side reliability behavior:
// StatelessReader (accepts DATA from any matching writer with no ACKNACK
// loop, used for SPDP) and StatefulReader (per-matched-writer WriterProxy
// tracking and ACKNACK-driven repair, used by SEDP and user endpoints).
package reader

import (
	"sync"
	"time"

	"github.com/odin-rtps/rtps/pkg/cache"
	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

// defaultHeartbeatSuppressionDuration bounds how often a StatefulReader
// will repeat an ACKNACK to the same writer: at most once per this
// interval, unless nothing is owed at all.
const defaultHeartbeatSuppressionDuration = 200 * time.Millisecond

func changeKindFor(d wire.DataSubmessage) rtpstypes.ChangeKind {
	if d.DataFlag {
		return rtpstypes.ChangeKindAlive
	}
	if !d.KeyFlag {
		return rtpstypes.ChangeKindAlive
	}
	if status, ok := d.InlineQos.Get(wire.PIDStatusInfo); ok && len(status) > 0 {
		switch {
		case status[0]&wire.StatusInfoDisposedFlag != 0:
			return rtpstypes.ChangeKindNotAliveDisposed
		case status[0]&wire.StatusInfoUnregisteredFlag != 0:
			return rtpstypes.ChangeKindNotAliveUnregistered
		}
	}
	return rtpstypes.ChangeKindNotAliveDisposed
}

// StatelessReader accepts DATA addressed to it (or to ENTITYID_UNKNOWN)
// from any writer, with no knowledge of which writers exist.
type StatelessReader struct {
	Guid  rtpstypes.GUID
	Cache *cache.HistoryCache
}

// NewStatelessReader returns a reader backed by its own empty cache.
func NewStatelessReader(guid rtpstypes.GUID) *StatelessReader {
	return &StatelessReader{Guid: guid, Cache: cache.NewHistoryCache()}
}

// ReceiveData implements the BestEffort stateless reader behavior: a
// submessage is accepted if its readerId names this reader or is
// unaddressed, and the resulting change is appended unconditionally (the
// history cache itself de-duplicates by writer GUID and sequence number).
func (r *StatelessReader) ReceiveData(writerGuidPrefix rtpstypes.GuidPrefix, d wire.DataSubmessage) {
	if d.ReaderId != r.Guid.EntityId && d.ReaderId != rtpstypes.EntityIdUnknown {
		return
	}

	r.Cache.AddChange(&cache.CacheChange{
		Kind:           changeKindFor(d),
		WriterGuid:     rtpstypes.GUID{Prefix: writerGuidPrefix, EntityId: d.WriterId},
		SequenceNumber: d.WriterSN,
		Data:           d.SerializedPayload,
		ViewState:      cache.ViewStateNew,
	})
}

// StatefulReader tracks one WriterProxy per matched writer, folds incoming
// DATA/GAP/HEARTBEAT into that proxy, and produces the ACKNACK needed to
// repair gaps for Reliable matches.
type StatefulReader struct {
	mu sync.Mutex

	Guid           rtpstypes.GUID
	Reliability    rtpstypes.ReliabilityKind
	Cache          *cache.HistoryCache
	matchedWriters map[rtpstypes.GUID]*endpoint.WriterProxy
	ackNackCount   int32

	// HeartbeatSuppressionDuration bounds how often SendAckNacks will repeat
	// an ACKNACK to the same matched writer.
	HeartbeatSuppressionDuration time.Duration
}

// NewStatefulReader returns a reader with no matched writers yet.
func NewStatefulReader(guid rtpstypes.GUID, reliability rtpstypes.ReliabilityKind) *StatefulReader {
	return &StatefulReader{
		Guid:                         guid,
		Reliability:                  reliability,
		Cache:                        cache.NewHistoryCache(),
		matchedWriters:               make(map[rtpstypes.GUID]*endpoint.WriterProxy),
		HeartbeatSuppressionDuration: defaultHeartbeatSuppressionDuration,
	}
}

// MatchedWriterAdd registers wp as a newly matched writer.
func (r *StatefulReader) MatchedWriterAdd(wp *endpoint.WriterProxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchedWriters[wp.RemoteWriterGuid] = wp
}

// MatchedWriterRemove drops a writer that is no longer matched.
func (r *StatefulReader) MatchedWriterRemove(guid rtpstypes.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matchedWriters, guid)
}

// MatchedWriterLookup returns the proxy for guid, if matched.
func (r *StatefulReader) MatchedWriterLookup(guid rtpstypes.GUID) (*endpoint.WriterProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.matchedWriters[guid]
	return wp, ok
}

func (r *StatefulReader) snapshotWriters() []*endpoint.WriterProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*endpoint.WriterProxy, 0, len(r.matchedWriters))
	for _, wp := range r.matchedWriters {
		out = append(out, wp)
	}
	return out
}

// ReceiveData folds an incoming DATA into the matched writer's proxy and
// appends the change to the cache. Data from an unmatched writer is
// dropped: the writer must be discovered and matched first.
func (r *StatefulReader) ReceiveData(writerGuidPrefix rtpstypes.GuidPrefix, d wire.DataSubmessage) {
	if d.ReaderId != r.Guid.EntityId && d.ReaderId != rtpstypes.EntityIdUnknown {
		return
	}
	writerGuid := rtpstypes.GUID{Prefix: writerGuidPrefix, EntityId: d.WriterId}
	wp, ok := r.MatchedWriterLookup(writerGuid)
	if !ok {
		return
	}

	wp.ReceivedChangeSet(d.WriterSN)
	r.Cache.AddChange(&cache.CacheChange{
		Kind:           changeKindFor(d),
		WriterGuid:     writerGuid,
		SequenceNumber: d.WriterSN,
		Data:           d.SerializedPayload,
		ViewState:      cache.ViewStateNew,
	})
}

// ReceiveGap folds an incoming GAP into the matched writer's proxy, marking
// the named range as irrelevant rather than missing.
func (r *StatefulReader) ReceiveGap(writerGuidPrefix rtpstypes.GuidPrefix, g wire.GapSubmessage) {
	writerGuid := rtpstypes.GUID{Prefix: writerGuidPrefix, EntityId: g.WriterId}
	wp, ok := r.MatchedWriterLookup(writerGuid)
	if !ok {
		return
	}
	for sn := g.GapStart; sn < g.GapList.Base; sn++ {
		wp.IrrelevantChangeSet(sn)
	}
	for _, sn := range g.GapList.Bits {
		wp.IrrelevantChangeSet(sn)
	}
}

// ReceiveHeartbeat folds an incoming HEARTBEAT into the matched writer's
// proxy. It returns false for a stale or duplicate heartbeat, in which case
// no ACKNACK should be generated.
func (r *StatefulReader) ReceiveHeartbeat(writerGuidPrefix rtpstypes.GuidPrefix, h wire.HeartbeatSubmessage) bool {
	writerGuid := rtpstypes.GUID{Prefix: writerGuidPrefix, EntityId: h.WriterId}
	wp, ok := r.MatchedWriterLookup(writerGuid)
	if !ok {
		return false
	}
	if !wp.HeartbeatReceived(h.Count) {
		return false
	}
	wp.LostChangesUpdate(h.FirstSN)
	wp.MissingChangesUpdate(h.LastSN)
	wp.RecordHeartbeatFinal(h.FinalFlag)
	return true
}

// SendAckNacks implements the Reliable reader's repair loop: one ACKNACK
// per matched writer still owed a response, naming its currently missing
// sequence numbers. A writer whose last HEARTBEAT set FINAL and who has
// nothing missing is skipped, and a writer is never nacked again within
// HeartbeatSuppressionDuration of its last ACKNACK.
func (r *StatefulReader) SendAckNacks(send func(*endpoint.WriterProxy, wire.AckNackSubmessage)) {
	now := time.Now()
	for _, wp := range r.snapshotWriters() {
		if !wp.AckNackDue(r.HeartbeatSuppressionDuration, now) {
			continue
		}

		r.mu.Lock()
		r.ackNackCount++
		count := r.ackNackCount
		r.mu.Unlock()

		missing := wp.MissingChanges()
		base := wp.AvailableChangesMax() + 1
		if len(missing) > 0 {
			base = missing[0]
		}
		send(wp, wire.AckNackSubmessage{
			FinalFlag:     len(missing) == 0,
			ReaderId:      r.Guid.EntityId,
			WriterId:      wp.RemoteWriterGuid.EntityId,
			ReaderSNState: wire.NewSequenceNumberSet(base, missing),
			Count:         count,
		})
		wp.MarkAckNackSent(now)
	}
}
