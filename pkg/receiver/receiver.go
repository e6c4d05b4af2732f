// Package receiver implements the RTPS MessageReceiver: the per-datagram
// dispatch loop that turns a decoded wire.Message into calls against the
// matched reader/writer endpoints it names.
package receiver

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
	"github.com/odin-rtps/rtps/pkg/writer"
)

// EndpointLookup resolves the local endpoints addressed by an incoming
// submessage, keyed by EntityId. A participant registers every local
// reader/writer here as it is created.
//
// The maps are read concurrently by the unicast and multicast receive
// loops and the protocol tick loop, and written by DataWriter/DataReader
// creation and deletion running on the caller's goroutine; callers outside
// this package must bracket any access with Lock/Unlock or RLock/RUnlock.
type EndpointLookup struct {
	mu sync.RWMutex

	StatelessReaders map[rtpstypes.EntityId]*reader.StatelessReader
	StatefulReaders  map[rtpstypes.EntityId]*reader.StatefulReader
	StatefulWriters  map[rtpstypes.EntityId]*writer.StatefulWriter

	// DataHandlers lets an owner above plain reader/writer endpoints (SPDP's
	// Detector, SEDP's per-builtin-endpoint matching trigger) take DATA
	// addressed to one of its EntityIds instead of a generic history cache.
	// Checked before StatelessReaders/StatefulReaders; when present for a
	// ReaderId, it handles that submessage exclusively.
	DataHandlers map[rtpstypes.EntityId]func(rtpstypes.GuidPrefix, wire.DataSubmessage)
}

// NewEndpointLookup returns an empty lookup table.
func NewEndpointLookup() *EndpointLookup {
	return &EndpointLookup{
		StatelessReaders: make(map[rtpstypes.EntityId]*reader.StatelessReader),
		StatefulReaders:  make(map[rtpstypes.EntityId]*reader.StatefulReader),
		StatefulWriters:  make(map[rtpstypes.EntityId]*writer.StatefulWriter),
		DataHandlers:     make(map[rtpstypes.EntityId]func(rtpstypes.GuidPrefix, wire.DataSubmessage)),
	}
}

// Lock/Unlock/RLock/RUnlock expose the table's mutex to callers outside this
// package (pkg/dds registers and unregisters endpoints, and snapshots the
// tables once per protocol tick) so every access to the maps above goes
// through the same lock this package's own dispatch methods use.
func (l *EndpointLookup) Lock()    { l.mu.Lock() }
func (l *EndpointLookup) Unlock()  { l.mu.Unlock() }
func (l *EndpointLookup) RLock()   { l.mu.RLock() }
func (l *EndpointLookup) RUnlock() { l.mu.RUnlock() }

// MessageReceiver decodes and dispatches inbound RTPS messages per
// DDSI-RTPS 2.4 section 8.3.4: it takes the source GuidPrefix, version and
// vendor from the message header and tracks the timestamp state set by
// INFO_TS as it walks a message's submessages. INFO_SRC is not decoded
// (pkg/wire skips it as an unknown kind), so it never changes the source
// GuidPrefix. A participant's unicast and multicast sockets each run their
// own read loop but share one MessageReceiver, so ProcessPacket serializes
// whole-packet processing with its own mutex: the per-message state below
// must not be overwritten by one packet's dispatch while another is still
// using it.
type MessageReceiver struct {
	logger zerolog.Logger
	lookup *EndpointLookup

	mu sync.Mutex

	sourceGuidPrefix      rtpstypes.GuidPrefix
	sourceVersion         rtpstypes.ProtocolVersion
	sourceVendorId        rtpstypes.VendorId
	timestampValid        bool
	unicastReplyLocator   rtpstypes.Locator
	multicastReplyLocator rtpstypes.Locator
}

// NewMessageReceiver returns a receiver dispatching into lookup.
func NewMessageReceiver(logger zerolog.Logger, lookup *EndpointLookup) *MessageReceiver {
	return &MessageReceiver{logger: logger.With().Str("component", "receiver").Logger(), lookup: lookup}
}

// ProcessPacket decodes buf as an RTPS message and dispatches every
// submessage it contains. Decode errors are logged and dropped: a
// malformed or foreign datagram must never take down the receive loop.
func (mr *MessageReceiver) ProcessPacket(buf []byte) {
	msg, err := wire.DecodeMessage(buf)
	if err != nil {
		mr.logger.Debug().Err(err).Msg("dropping undecodable packet")
		return
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	mr.sourceGuidPrefix = msg.Header.GuidPrefix
	mr.sourceVersion = msg.Header.Version
	mr.sourceVendorId = msg.Header.VendorID
	mr.timestampValid = false

	for _, sm := range msg.Submessages {
		mr.dispatch(sm)
	}
}

func (mr *MessageReceiver) dispatch(sm wire.Submessage) {
	switch v := sm.(type) {
	case wire.InfoTimestampSubmessage:
		mr.timestampValid = !v.InvalidateFlag
	case wire.DataSubmessage:
		mr.handleData(v)
	case wire.GapSubmessage:
		mr.handleGap(v)
	case wire.HeartbeatSubmessage:
		mr.handleHeartbeat(v)
	case wire.AckNackSubmessage:
		mr.handleAckNack(v)
	case wire.PadSubmessage:
		// nothing to do
	default:
		mr.logger.Debug().Str("kind", kindName(sm.Kind())).Msg("unhandled submessage kind")
	}
}

// handleData dispatches a DATA submessage. ReaderId ENTITYID_UNKNOWN means
// "every reader of this participant": SPDP's announcer uses it because it
// cannot know the detector's identity in advance, and a conformant peer
// may use it for any submessage it intends as a broadcast, so every table
// is consulted rather than just StatelessReaders.
func (mr *MessageReceiver) handleData(d wire.DataSubmessage) {
	mr.lookup.RLock()
	defer mr.lookup.RUnlock()

	if h, ok := mr.lookup.DataHandlers[d.ReaderId]; ok {
		h(mr.sourceGuidPrefix, d)
		return
	}
	if d.ReaderId == rtpstypes.EntityIdUnknown {
		for _, h := range mr.lookup.DataHandlers {
			h(mr.sourceGuidPrefix, d)
		}
		for _, sr := range mr.lookup.StatelessReaders {
			sr.ReceiveData(mr.sourceGuidPrefix, d)
		}
		for _, sr := range mr.lookup.StatefulReaders {
			sr.ReceiveData(mr.sourceGuidPrefix, d)
		}
		return
	}
	if sr, ok := mr.lookup.StatelessReaders[d.ReaderId]; ok {
		sr.ReceiveData(mr.sourceGuidPrefix, d)
	}
	if sr, ok := mr.lookup.StatefulReaders[d.ReaderId]; ok {
		sr.ReceiveData(mr.sourceGuidPrefix, d)
	}
}

func (mr *MessageReceiver) handleGap(g wire.GapSubmessage) {
	mr.lookup.RLock()
	defer mr.lookup.RUnlock()

	if g.ReaderId == rtpstypes.EntityIdUnknown {
		for _, sr := range mr.lookup.StatefulReaders {
			sr.ReceiveGap(mr.sourceGuidPrefix, g)
		}
		return
	}
	if sr, ok := mr.lookup.StatefulReaders[g.ReaderId]; ok {
		sr.ReceiveGap(mr.sourceGuidPrefix, g)
	}
}

func (mr *MessageReceiver) handleHeartbeat(h wire.HeartbeatSubmessage) {
	mr.lookup.RLock()
	defer mr.lookup.RUnlock()

	if h.ReaderId == rtpstypes.EntityIdUnknown {
		for _, sr := range mr.lookup.StatefulReaders {
			sr.ReceiveHeartbeat(mr.sourceGuidPrefix, h)
		}
		return
	}
	if sr, ok := mr.lookup.StatefulReaders[h.ReaderId]; ok {
		sr.ReceiveHeartbeat(mr.sourceGuidPrefix, h)
	}
}

func (mr *MessageReceiver) handleAckNack(a wire.AckNackSubmessage) {
	mr.lookup.RLock()
	sw, ok := mr.lookup.StatefulWriters[a.WriterId]
	mr.lookup.RUnlock()
	if !ok {
		return
	}
	readerGuid := rtpstypes.GUID{Prefix: mr.sourceGuidPrefix, EntityId: a.ReaderId}
	sw.ProcessAckNack(readerGuid, a)
}

func kindName(kind byte) string {
	switch kind {
	case wire.SubmessageKindData:
		return "DATA"
	case wire.SubmessageKindHeartbeat:
		return "HEARTBEAT"
	case wire.SubmessageKindAckNack:
		return "ACKNACK"
	case wire.SubmessageKindGap:
		return "GAP"
	case wire.SubmessageKindInfoTimestamp:
		return "INFO_TS"
	case wire.SubmessageKindInfoSource:
		return "INFO_SRC"
	case wire.SubmessageKindInfoDest:
		return "INFO_DST"
	case wire.SubmessageKindInfoReply:
		return "INFO_REPLY"
	case wire.SubmessageKindNackFrag:
		return "NACK_FRAG"
	case wire.SubmessageKindDataFrag:
		return "DATA_FRAG"
	case wire.SubmessageKindHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	case wire.SubmessageKindPad:
		return "PAD"
	default:
		return "UNKNOWN"
	}
}
