// Package spdp implements the Simple Participant Discovery Protocol: the
// builtin stateless writer/reader pair every participant runs to announce
// itself to, and detect, every other participant on its multicast domain.
package spdp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
	"github.com/odin-rtps/rtps/pkg/writer"
)

// MulticastPort returns the well-known SPDP multicast port for a domain.
func MulticastPort(domainId rtpstypes.DomainId) uint32 {
	return uint32(7400 + 250*int32(domainId))
}

// MulticastLocator returns the well-known SPDP multicast locator
// (239.255.0.1) for a domain.
func MulticastLocator(domainId rtpstypes.DomainId) rtpstypes.Locator {
	return rtpstypes.NewLocatorUDPv4([4]byte{239, 255, 0, 1}, MulticastPort(domainId))
}

// EncodeParticipantProxy renders pp as the ParameterList an SPDP DATA
// submessage carries as its serialized payload.
func EncodeParticipantProxy(pp rtpstypes.ParticipantProxy) wire.ParameterList {
	var pl wire.ParameterList
	add := func(id wire.ParameterId, v []byte) {
		pl.Parameters = append(pl.Parameters, wire.Parameter{ID: id, Value: v})
	}

	guid := make([]byte, 0, 16)
	guid = wire.EncodeGuidPrefix(guid, pp.GuidPrefix)
	guid = wire.EncodeEntityId(guid, rtpstypes.EntityIdParticipant)
	add(wire.PIDParticipantGuid, guid)

	add(wire.PIDDomainId, be32(uint32(pp.DomainId)))
	if pp.DomainTag != "" {
		add(wire.PIDDomainTag, wire.EncodeString(nil, wire.ByteOrder, pp.DomainTag))
	}
	add(wire.PIDProtocolVersion, []byte{pp.ProtocolVersion.Major, pp.ProtocolVersion.Minor, 0, 0})
	add(wire.PIDVendorId, []byte{pp.VendorId[0], pp.VendorId[1], 0, 0})
	add(wire.PIDBuiltinEndpointSet, be32(uint32(pp.AvailableBuiltinEndpoints)))
	add(wire.PIDExpectsInlineQos, boolBytes(pp.ExpectsInlineQos))
	add(wire.PIDParticipantManualLiveliness, be32(uint32(pp.ManualLivelinessCount)))
	add(wire.PIDParticipantLeaseDuration, encodeDuration(pp.LeaseDuration))

	for _, loc := range pp.MetatrafficUnicastLocatorList {
		add(wire.PIDMetatrafficUnicastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}
	for _, loc := range pp.MetatrafficMulticastLocatorList {
		add(wire.PIDMetatrafficMulticastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}
	for _, loc := range pp.DefaultUnicastLocatorList {
		add(wire.PIDDefaultUnicastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}
	for _, loc := range pp.DefaultMulticastLocatorList {
		add(wire.PIDMulticastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}

	return pl
}

// DecodeParticipantProxy recovers a ParticipantProxy from the ParameterList
// of a received SPDP DATA submessage.
func DecodeParticipantProxy(pl wire.ParameterList) (rtpstypes.ParticipantProxy, error) {
	var pp rtpstypes.ParticipantProxy

	if v, ok := pl.Get(wire.PIDParticipantGuid); ok && len(v) >= 16 {
		prefix, _, err := wire.DecodeGuidPrefix(v)
		if err != nil {
			return pp, err
		}
		pp.GuidPrefix = prefix
	}
	if v, ok := pl.Get(wire.PIDDomainId); ok && len(v) >= 4 {
		pp.DomainId = rtpstypes.DomainId(wire.ByteOrder.Uint32(v))
	}
	if v, ok := pl.Get(wire.PIDDomainTag); ok {
		s, _, err := wire.DecodeString(v, wire.ByteOrder)
		if err == nil {
			pp.DomainTag = s
		}
	}
	if v, ok := pl.Get(wire.PIDProtocolVersion); ok && len(v) >= 2 {
		pp.ProtocolVersion = rtpstypes.ProtocolVersion{Major: v[0], Minor: v[1]}
	}
	if v, ok := pl.Get(wire.PIDVendorId); ok && len(v) >= 2 {
		pp.VendorId = rtpstypes.VendorId{v[0], v[1]}
	}
	if v, ok := pl.Get(wire.PIDBuiltinEndpointSet); ok && len(v) >= 4 {
		pp.AvailableBuiltinEndpoints = rtpstypes.BuiltinEndpointSet(wire.ByteOrder.Uint32(v))
	}
	if v, ok := pl.Get(wire.PIDExpectsInlineQos); ok && len(v) >= 1 {
		pp.ExpectsInlineQos = v[0] != 0
	}
	if v, ok := pl.Get(wire.PIDParticipantManualLiveliness); ok && len(v) >= 4 {
		pp.ManualLivelinessCount = int32(wire.ByteOrder.Uint32(v))
	}
	if v, ok := pl.Get(wire.PIDParticipantLeaseDuration); ok && len(v) >= 8 {
		pp.LeaseDuration = decodeDuration(v)
	}
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PIDMetatrafficUnicastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				pp.MetatrafficUnicastLocatorList = append(pp.MetatrafficUnicastLocatorList, loc)
			}
		case wire.PIDMetatrafficMulticastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				pp.MetatrafficMulticastLocatorList = append(pp.MetatrafficMulticastLocatorList, loc)
			}
		case wire.PIDDefaultUnicastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				pp.DefaultUnicastLocatorList = append(pp.DefaultUnicastLocatorList, loc)
			}
		case wire.PIDMulticastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				pp.DefaultMulticastLocatorList = append(pp.DefaultMulticastLocatorList, loc)
			}
		}
	}

	return pp, nil
}

func be32(v uint32) []byte {
	buf := make([]byte, 4)
	wire.ByteOrder.PutUint32(buf, v)
	return buf
}

func boolBytes(b bool) []byte {
	if b {
		return []byte{1, 0, 0, 0}
	}
	return []byte{0, 0, 0, 0}
}

func encodeDuration(d time.Duration) []byte {
	buf := make([]byte, 8)
	wire.ByteOrder.PutUint32(buf[0:4], uint32(d/time.Second))
	wire.ByteOrder.PutUint32(buf[4:8], uint32(d%time.Second))
	return buf
}

func decodeDuration(v []byte) time.Duration {
	sec := wire.ByteOrder.Uint32(v[0:4])
	nsec := wire.ByteOrder.Uint32(v[4:8])
	return time.Duration(sec)*time.Second + time.Duration(nsec)
}

// Announcer owns the SPDPBuiltinParticipantWriter: a stateless best-effort
// writer with a single ReaderLocator pointed at the domain's multicast
// address, adding a new cache-change holding the current local
// ParticipantProxy on every announce tick; earlier announcements are not
// removed from the writer's cache.
type Announcer struct {
	logger zerolog.Logger

	Writer      *writer.StatelessWriter
	multicast   rtpstypes.Locator
	buildProxy  func() rtpstypes.ParticipantProxy

	wg sync.WaitGroup
}

// NewAnnouncer returns an announcer for guidPrefix on domainId, calling
// buildProxy to produce a fresh ParticipantProxy on every announce tick (so
// it reflects the participant's current locator/endpoint set).
func NewAnnouncer(logger zerolog.Logger, guidPrefix rtpstypes.GuidPrefix, domainId rtpstypes.DomainId, buildProxy func() rtpstypes.ParticipantProxy) *Announcer {
	guid := rtpstypes.GUID{Prefix: guidPrefix, EntityId: rtpstypes.EntityIdSPDPBuiltinParticipantAnnouncer}
	w := writer.NewStatelessWriter(guid, rtpstypes.ReliabilityBestEffort)
	multicast := MulticastLocator(domainId)
	w.AddReaderLocator(endpoint.NewReaderLocator(multicast, false))

	return &Announcer{
		logger:     logger.With().Str("component", "spdp-announcer").Logger(),
		Writer:     w,
		multicast:  multicast,
		buildProxy: buildProxy,
	}
}

// announceOnce publishes a fresh proxy as a new cache-change and drains it
// to the multicast locator via send.
func (a *Announcer) announceOnce(send func(rtpstypes.Locator, wire.DataSubmessage)) {
	pl := EncodeParticipantProxy(a.buildProxy())
	payload := pl.Encode(nil, wire.ByteOrder)
	a.Writer.NewChange(rtpstypes.ChangeKindAlive, payload, rtpstypes.InstanceHandle{})
	a.Writer.SendUnsentChanges(send, func(rtpstypes.Locator, wire.GapSubmessage) {})
}

// Run announces on a cadence of leaseDuration/3 until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context, leaseDuration time.Duration, send func(rtpstypes.Locator, wire.DataSubmessage)) {
	a.wg.Add(1)
	defer a.wg.Done()

	period := leaseDuration / 3
	if period <= 0 {
		period = time.Second
	}
	a.announceOnce(send)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.announceOnce(send)
		}
	}
}

// Wait blocks until Run has returned.
func (a *Announcer) Wait() { a.wg.Wait() }

// discoveredParticipant tracks liveliness for one remote participant so the
// detector can tombstone it when its lease expires.
type discoveredParticipant struct {
	proxy    rtpstypes.ParticipantProxy
	lastSeen time.Time
}

// Detector owns the SPDPBuiltinParticipantReader and the table of live
// remote participants it has heard from.
type Detector struct {
	logger zerolog.Logger

	Reader *reader.StatelessReader

	domainId  rtpstypes.DomainId
	domainTag string

	mu      sync.Mutex
	known   map[rtpstypes.GuidPrefix]*discoveredParticipant
	lastSN  map[rtpstypes.GuidPrefix]rtpstypes.SequenceNumber

	onDiscovered func(rtpstypes.ParticipantProxy)
	onLost       func(rtpstypes.GuidPrefix)
}

// NewDetector returns a detector scoped to domainId/domainTag, invoking
// onDiscovered for every in-domain DATA that carries a new sequence number
// from a participant (each of its announcements, whether or not the data
// changed) and onLost once its lease expires.
func NewDetector(logger zerolog.Logger, guidPrefix rtpstypes.GuidPrefix, domainId rtpstypes.DomainId, domainTag string, onDiscovered func(rtpstypes.ParticipantProxy), onLost func(rtpstypes.GuidPrefix)) *Detector {
	guid := rtpstypes.GUID{Prefix: guidPrefix, EntityId: rtpstypes.EntityIdSPDPBuiltinParticipantDetector}
	return &Detector{
		logger:       logger.With().Str("component", "spdp-detector").Logger(),
		Reader:       reader.NewStatelessReader(guid),
		domainId:     domainId,
		domainTag:    domainTag,
		known:        make(map[rtpstypes.GuidPrefix]*discoveredParticipant),
		lastSN:       make(map[rtpstypes.GuidPrefix]rtpstypes.SequenceNumber),
		onDiscovered: onDiscovered,
		onLost:       onLost,
	}
}

// ReceiveData feeds an inbound SPDP DATA submessage through the stateless
// reader and, on a new sequence number, decodes and reconciles it against
// the known-participants table.
func (d *Detector) ReceiveData(writerGuidPrefix rtpstypes.GuidPrefix, data wire.DataSubmessage) {
	d.Reader.ReceiveData(writerGuidPrefix, data)

	d.mu.Lock()
	if seen, ok := d.lastSN[writerGuidPrefix]; ok && seen >= data.WriterSN {
		d.mu.Unlock()
		return
	}
	d.lastSN[writerGuidPrefix] = data.WriterSN
	d.mu.Unlock()

	pl, _, err := wire.DecodeParameterList(data.SerializedPayload, wire.ByteOrder)
	if err != nil {
		d.logger.Debug().Err(err).Msg("dropping undecodable SPDP payload")
		return
	}
	pp, err := DecodeParticipantProxy(pl)
	if err != nil {
		d.logger.Debug().Err(err).Msg("dropping unparseable participant proxy")
		return
	}
	if pp.DomainId != d.domainId || pp.DomainTag != d.domainTag {
		return
	}
	if pp.LeaseDuration == 0 {
		pp.LeaseDuration = rtpstypes.LeaseDurationDefault
	}

	d.mu.Lock()
	d.known[pp.GuidPrefix] = &discoveredParticipant{proxy: pp, lastSeen: time.Now()}
	d.mu.Unlock()

	if d.onDiscovered != nil {
		d.onDiscovered(pp)
	}
}

// TombstoneExpired drops every participant whose lease has expired,
// reporting each one via onLost. Intended to be called once per discovery
// tick from the participant's discovery task.
func (d *Detector) TombstoneExpired(now time.Time) {
	var expired []rtpstypes.GuidPrefix

	d.mu.Lock()
	for prefix, dp := range d.known {
		if now.Sub(dp.lastSeen) > dp.proxy.LeaseDuration {
			expired = append(expired, prefix)
			delete(d.known, prefix)
		}
	}
	d.mu.Unlock()

	for _, prefix := range expired {
		if d.onLost != nil {
			d.onLost(prefix)
		}
	}
}

// Participants returns a snapshot of every currently-known remote
// participant.
func (d *Detector) Participants() []rtpstypes.ParticipantProxy {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rtpstypes.ParticipantProxy, 0, len(d.known))
	for _, dp := range d.known {
		out = append(out, dp.proxy)
	}
	return out
}
