// Package dds implements the entity container layer a user program talks
// to: DomainParticipant, Publisher, Subscriber, Topic, DataWriter and
// DataReader, wired on top of the wire, cache, endpoint, writer, reader,
// transport and discovery packages.
package dds

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/internal/config"
	"github.com/odin-rtps/rtps/internal/resource"
	"github.com/odin-rtps/rtps/internal/telemetry"
	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/discovery/sedp"
	"github.com/odin-rtps/rtps/pkg/discovery/spdp"
	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/receiver"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/transmitter"
	"github.com/odin-rtps/rtps/pkg/transport"
	"github.com/odin-rtps/rtps/pkg/wire"
	"github.com/odin-rtps/rtps/pkg/writer"
)

// udpSender adapts a single UDPTransport's unicast socket into the
// transmitter.Sender interface: one outbound socket can address any
// destination locator, regardless of which locator it is bound to receive
// on.
type udpSender struct {
	t *transport.UDPTransport
}

func (s udpSender) SendMessage(loc rtpstypes.Locator, data []byte) error {
	addr, err := transport.LocatorToUDPAddr(loc)
	if err != nil {
		return err
	}
	return s.t.SendTo(data, addr)
}

func firstLocator(unicast, multicast []rtpstypes.Locator) rtpstypes.Locator {
	if len(unicast) > 0 {
		return unicast[0]
	}
	if len(multicast) > 0 {
		return multicast[0]
	}
	return rtpstypes.LocatorInvalid
}

// DomainParticipant is one RTPS participant: it owns a GUID prefix, the
// SPDP and SEDP builtin endpoints, the transports and message receiver/
// transmitter, and every user-defined DataWriter/DataReader created against
// it.
type DomainParticipant struct {
	logger   zerolog.Logger
	cfg      config.Config
	domainId rtpstypes.DomainId
	guidPrefix rtpstypes.GuidPrefix

	lookup *receiver.EndpointLookup
	mr     *receiver.MessageReceiver
	mt     *transmitter.MessageTransmitter

	unicastTransport *transport.UDPTransport
	mcastTransport   *transport.UDPTransport

	spdpAnnouncer *spdp.Announcer
	spdpDetector  *spdp.Detector
	sedp          *sedp.SEDP

	guard *resource.Guard

	mu                 sync.Mutex
	writersByTopic     map[string][]*DataWriter
	readersByTopic     map[string][]*DataReader
	remoteParticipants map[rtpstypes.GuidPrefix]rtpstypes.ParticipantProxy
	publishers         []*Publisher
	subscribers        []*Subscriber
	deleted            bool

	entityCounter uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDomainParticipant creates a participant for cfg.DomainId: it binds a
// unicast socket for user traffic and joins the SPDP multicast group, but
// does not start the protocol loop until Start is called.
func NewDomainParticipant(logger zerolog.Logger, cfg config.Config) (*DomainParticipant, error) {
	guidPrefix := NewGuidPrefix()
	domainId := rtpstypes.DomainId(cfg.DomainId)

	unicastTransport, err := transport.NewUDPUnicastTransport(logger, 0)
	if err != nil {
		return nil, fmt.Errorf("bind unicast transport: %w", err)
	}

	mcastLoc := spdp.MulticastLocator(domainId)
	groupAddr := mcastLoc.IPv4()
	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("resolve interface %q: %w", cfg.Interface, err)
		}
	}
	mcastTransport, err := transport.NewUDPMulticastTransport(
		logger, net.IPv4(groupAddr[0], groupAddr[1], groupAddr[2], groupAddr[3]), uint16(mcastLoc.Port), iface)
	if err != nil {
		return nil, fmt.Errorf("join SPDP multicast group: %w", err)
	}

	lookup := receiver.NewEndpointLookup()
	mr := receiver.NewMessageReceiver(logger, lookup)
	mt := transmitter.NewMessageTransmitter(logger, guidPrefix, udpSender{t: unicastTransport})

	dp := &DomainParticipant{
		logger:             logger.With().Str("component", "participant").Str("guid_prefix", fmt.Sprintf("%x", guidPrefix)).Logger(),
		cfg:                cfg,
		domainId:           domainId,
		guidPrefix:         guidPrefix,
		lookup:             lookup,
		mr:                 mr,
		mt:                 mt,
		unicastTransport:   unicastTransport,
		mcastTransport:     mcastTransport,
		guard:              resource.NewGuard(cfg, logger),
		writersByTopic:     make(map[string][]*DataWriter),
		readersByTopic:     make(map[string][]*DataReader),
		remoteParticipants: make(map[rtpstypes.GuidPrefix]rtpstypes.ParticipantProxy),
	}

	dp.sedp = sedp.NewSEDP(logger, guidPrefix, dp)
	dp.spdpAnnouncer = spdp.NewAnnouncer(logger, guidPrefix, domainId, dp.buildProxy)
	dp.spdpDetector = spdp.NewDetector(logger, guidPrefix, domainId, cfg.DomainTag, dp.onParticipantDiscovered, dp.onParticipantLost)

	lookup.DataHandlers[rtpstypes.EntityIdSPDPBuiltinParticipantDetector] = dp.spdpDetector.ReceiveData
	lookup.DataHandlers[rtpstypes.EntityIdSEDPBuiltinPublicationsDetector] = dp.sedp.HandlePublicationData
	lookup.DataHandlers[rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector] = dp.sedp.HandleSubscriptionData
	lookup.DataHandlers[rtpstypes.EntityIdSEDPBuiltinTopicsDetector] = dp.sedp.HandleTopicData

	lookup.StatefulReaders[dp.sedp.PublicationsReader.Guid.EntityId] = dp.sedp.PublicationsReader
	lookup.StatefulReaders[dp.sedp.SubscriptionsReader.Guid.EntityId] = dp.sedp.SubscriptionsReader
	lookup.StatefulReaders[dp.sedp.TopicsReader.Guid.EntityId] = dp.sedp.TopicsReader
	lookup.StatefulWriters[dp.sedp.PublicationsWriter.Guid.EntityId] = dp.sedp.PublicationsWriter
	lookup.StatefulWriters[dp.sedp.SubscriptionsWriter.Guid.EntityId] = dp.sedp.SubscriptionsWriter
	lookup.StatefulWriters[dp.sedp.TopicsWriter.Guid.EntityId] = dp.sedp.TopicsWriter

	return dp, nil
}

func (dp *DomainParticipant) buildProxy() rtpstypes.ParticipantProxy {
	return rtpstypes.ParticipantProxy{
		GuidPrefix:                dp.guidPrefix,
		DomainId:                  dp.domainId,
		DomainTag:                 dp.cfg.DomainTag,
		ProtocolVersion:           rtpstypes.ProtocolVersion2_4,
		VendorId:                  rtpstypes.VendorIdUnknown,
		ExpectsInlineQos:          false,
		AvailableBuiltinEndpoints: rtpstypes.BuiltinEndpointParticipantAnnouncer | rtpstypes.BuiltinEndpointParticipantDetector | rtpstypes.BuiltinEndpointPublicationsAnnouncer | rtpstypes.BuiltinEndpointPublicationsDetector | rtpstypes.BuiltinEndpointSubscriptionsAnnouncer | rtpstypes.BuiltinEndpointSubscriptionsDetector | rtpstypes.BuiltinEndpointTopicsAnnouncer | rtpstypes.BuiltinEndpointTopicsDetector,
		MetatrafficUnicastLocatorList: []rtpstypes.Locator{dp.unicastTransport.Locator()},
		LeaseDuration:                 dp.cfg.SPDPLeaseDuration,
	}
}

func (dp *DomainParticipant) onParticipantDiscovered(pp rtpstypes.ParticipantProxy) {
	dp.mu.Lock()
	dp.remoteParticipants[pp.GuidPrefix] = pp
	count := len(dp.remoteParticipants)
	dp.mu.Unlock()

	dp.sedp.MatchParticipant(pp)
	telemetry.IncrementParticipantDiscovered()
	telemetry.SetParticipantsActive(count)
	dp.logger.Info().Str("peer", fmt.Sprintf("%x", pp.GuidPrefix)).Msg("participant discovered")
}

func (dp *DomainParticipant) onParticipantLost(prefix rtpstypes.GuidPrefix) {
	dp.mu.Lock()
	delete(dp.remoteParticipants, prefix)
	count := len(dp.remoteParticipants)
	dp.mu.Unlock()

	dp.sedp.RemoveParticipant(prefix)
	telemetry.IncrementParticipantLost()
	telemetry.SetParticipantsActive(count)
	dp.logger.Info().Str("peer", fmt.Sprintf("%x", prefix)).Msg("participant lease expired")
}

// CreatePublisher returns a new Publisher under this participant.
func (dp *DomainParticipant) CreatePublisher() *Publisher {
	p := &Publisher{participant: dp, defaultQos: qos.Default()}
	dp.mu.Lock()
	dp.publishers = append(dp.publishers, p)
	dp.mu.Unlock()
	return p
}

// CreateSubscriber returns a new Subscriber under this participant.
func (dp *DomainParticipant) CreateSubscriber() *Subscriber {
	s := &Subscriber{participant: dp, defaultQos: qos.Default()}
	dp.mu.Lock()
	dp.subscribers = append(dp.subscribers, s)
	dp.mu.Unlock()
	return s
}

// DeletePublisher retires p. Fails with PreconditionNotMet while p still
// owns any DataWriter.
func (dp *DomainParticipant) DeletePublisher(p *Publisher) error {
	if err := p.Delete(); err != nil {
		return err
	}
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for i, cand := range dp.publishers {
		if cand == p {
			dp.publishers = append(dp.publishers[:i], dp.publishers[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteSubscriber retires s. Fails with PreconditionNotMet while s still
// owns any DataReader.
func (dp *DomainParticipant) DeleteSubscriber(s *Subscriber) error {
	if err := s.Delete(); err != nil {
		return err
	}
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for i, cand := range dp.subscribers {
		if cand == s {
			dp.subscribers = append(dp.subscribers[:i], dp.subscribers[i+1:]...)
			break
		}
	}
	return nil
}

// unregisterDataWriter removes dw from the topic and wire-lookup tables. It
// does not touch dw's owning publisher; callers arrive via
// Publisher.DeleteDataWriter, which handles that separately.
func (dp *DomainParticipant) unregisterDataWriter(dw *DataWriter) {
	dp.lookup.Lock()
	delete(dp.lookup.StatefulWriters, dw.rtps.Guid.EntityId)
	dp.lookup.Unlock()

	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.writersByTopic[dw.topic.Name] = removeDataWriter(dp.writersByTopic[dw.topic.Name], dw)
}

// unregisterDataReader removes dr from the topic and wire-lookup tables. It
// does not touch dr's owning subscriber; callers arrive via
// Subscriber.DeleteDataReader, which handles that separately.
func (dp *DomainParticipant) unregisterDataReader(dr *DataReader) {
	dp.lookup.Lock()
	delete(dp.lookup.StatefulReaders, dr.rtps.Guid.EntityId)
	dp.lookup.Unlock()

	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.readersByTopic[dr.topic.Name] = removeDataReader(dp.readersByTopic[dr.topic.Name], dr)
}

// Delete retires the participant. Fails with PreconditionNotMet while it
// still owns any Publisher or Subscriber, matching the DCPS
// contained-entity deletion order. On success it stops every background
// goroutine and releases the transports, same as Close.
func (dp *DomainParticipant) Delete() error {
	dp.mu.Lock()
	if dp.deleted {
		dp.mu.Unlock()
		return ddserror.AlreadyDeleted("delete_participant", "")
	}
	if len(dp.publishers) > 0 || len(dp.subscribers) > 0 {
		dp.mu.Unlock()
		return ddserror.PreconditionNotMet("delete_participant", "")
	}
	dp.deleted = true
	dp.mu.Unlock()
	return dp.Close()
}

// CreateTopic returns a topic description. Topics carry no wire identity of
// their own; SEDP's TopicsWriter announcement is informational and keyed
// only by name and type.
func (dp *DomainParticipant) CreateTopic(name, typeName string) *Topic {
	return NewTopic(name, typeName)
}

func (dp *DomainParticipant) nextEntityId(kind byte) rtpstypes.EntityId {
	n := atomic.AddUint32(&dp.entityCounter, 1)
	return rtpstypes.EntityId{Key: [3]byte{byte(n >> 16), byte(n >> 8), byte(n)}, Kind: kind}
}

func (dp *DomainParticipant) createDataWriter(topic *Topic, q qos.Policies) (*DataWriter, error) {
	dp.mu.Lock()
	deleted := dp.deleted
	dp.mu.Unlock()
	if deleted {
		return nil, ddserror.AlreadyDeleted("create_datawriter", topic.Name)
	}
	if err := q.CheckSelfConsistent("create_datawriter", topic.Name); err != nil {
		return nil, err
	}
	if accept, reason := dp.guard.ShouldAcceptEndpoint(); !accept {
		dp.logger.Warn().Str("topic", topic.Name).Str("reason", reason).Msg("datawriter creation refused")
		return nil, ddserror.OutOfResources("create_datawriter", topic.Name)
	}
	reliability := rtpstypes.ReliabilityBestEffort
	if q.Reliability.Kind == qos.ReliabilityReliable {
		reliability = rtpstypes.ReliabilityReliable
	}

	entityId := dp.nextEntityId(rtpstypes.EntityKindUserDefinedWriterKey)
	guid := rtpstypes.GUID{Prefix: dp.guidPrefix, EntityId: entityId}
	sw := writer.NewStatefulWriter(guid, reliability)
	dw := &DataWriter{topic: topic, qos: q, rtps: sw}

	dp.mu.Lock()
	dp.writersByTopic[topic.Name] = append(dp.writersByTopic[topic.Name], dw)
	dp.mu.Unlock()

	dp.lookup.Lock()
	dp.lookup.StatefulWriters[entityId] = sw
	dp.lookup.Unlock()

	dp.sedp.AnnouncePublication(sedp.DiscoveredEndpointData{
		EndpointGuid:       guid,
		TopicName:          topic.Name,
		TypeName:           topic.TypeName,
		Qos:                q,
		UnicastLocatorList: []rtpstypes.Locator{dp.unicastTransport.Locator()},
	})

	return dw, nil
}

func (dp *DomainParticipant) createDataReader(topic *Topic, q qos.Policies) (*DataReader, error) {
	dp.mu.Lock()
	deleted := dp.deleted
	dp.mu.Unlock()
	if deleted {
		return nil, ddserror.AlreadyDeleted("create_datareader", topic.Name)
	}
	if err := q.CheckSelfConsistent("create_datareader", topic.Name); err != nil {
		return nil, err
	}
	if accept, reason := dp.guard.ShouldAcceptEndpoint(); !accept {
		dp.logger.Warn().Str("topic", topic.Name).Str("reason", reason).Msg("datareader creation refused")
		return nil, ddserror.OutOfResources("create_datareader", topic.Name)
	}
	reliability := rtpstypes.ReliabilityBestEffort
	if q.Reliability.Kind == qos.ReliabilityReliable {
		reliability = rtpstypes.ReliabilityReliable
	}

	entityId := dp.nextEntityId(rtpstypes.EntityKindUserDefinedReaderKey)
	guid := rtpstypes.GUID{Prefix: dp.guidPrefix, EntityId: entityId}
	sr := reader.NewStatefulReader(guid, reliability)
	dr := &DataReader{topic: topic, qos: q, rtps: sr}

	dp.mu.Lock()
	dp.readersByTopic[topic.Name] = append(dp.readersByTopic[topic.Name], dr)
	dp.mu.Unlock()

	dp.lookup.Lock()
	dp.lookup.StatefulReaders[entityId] = sr
	dp.lookup.Unlock()

	dp.sedp.AnnounceSubscription(sedp.DiscoveredEndpointData{
		EndpointGuid:       guid,
		TopicName:          topic.Name,
		TypeName:           topic.TypeName,
		Qos:                q,
		UnicastLocatorList: []rtpstypes.Locator{dp.unicastTransport.Locator()},
	})

	return dr, nil
}

// LocalWriters implements sedp.Registry.
func (dp *DomainParticipant) LocalWriters(topicName string) []sedp.LocalWriter {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	var out []sedp.LocalWriter
	for _, dw := range dp.writersByTopic[topicName] {
		out = append(out, sedp.LocalWriter{
			Guid:                dw.rtps.Guid,
			TopicName:           dw.topic.Name,
			TypeName:            dw.topic.TypeName,
			Qos:                 dw.qos,
			AddMatchedReader:    dw.rtps.MatchedReaderAdd,
			RemoveMatchedReader: dw.rtps.MatchedReaderRemove,
		})
	}
	return out
}

// LocalReaders implements sedp.Registry.
func (dp *DomainParticipant) LocalReaders(topicName string) []sedp.LocalReader {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	var out []sedp.LocalReader
	for _, dr := range dp.readersByTopic[topicName] {
		out = append(out, sedp.LocalReader{
			Guid:                dr.rtps.Guid,
			TopicName:           dr.topic.Name,
			TypeName:            dr.topic.TypeName,
			Qos:                 dr.qos,
			AddMatchedWriter:    dr.rtps.MatchedWriterAdd,
			RemoveMatchedWriter: dr.rtps.MatchedWriterRemove,
		})
	}
	return out
}

// Start binds the receive loops and begins the periodic SPDP announce and
// protocol tick, both of which run until ctx is cancelled or Close is
// called.
func (dp *DomainParticipant) Start(ctx context.Context) {
	dp.ctx, dp.cancel = context.WithCancel(ctx)

	dp.guard.StartMonitoring(dp.ctx, dp.cfg.MetricsInterval)

	dp.wg.Add(3)
	go func() { defer dp.wg.Done(); dp.unicastTransport.ReadLoop(dp.ctx, dp.handlePacket) }()
	go func() { defer dp.wg.Done(); dp.mcastTransport.ReadLoop(dp.ctx, dp.handlePacket) }()
	go func() {
		defer dp.wg.Done()
		dp.spdpAnnouncer.Run(dp.ctx, dp.cfg.SPDPLeaseDuration, dp.sendAnnounce)
	}()

	dp.wg.Add(1)
	go dp.runProtocolLoop()

	dp.logger.Info().Int32("domain_id", int32(dp.domainId)).Msg("participant started")
}

// Close stops every background goroutine and releases the transports.
func (dp *DomainParticipant) Close() error {
	if dp.cancel != nil {
		dp.cancel()
	}
	dp.wg.Wait()
	err1 := dp.unicastTransport.Close()
	err2 := dp.mcastTransport.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (dp *DomainParticipant) handlePacket(pkt transport.ReceivedPacket) {
	dp.mr.ProcessPacket(pkt.Data)
}

func (dp *DomainParticipant) sendAnnounce(loc rtpstypes.Locator, d wire.DataSubmessage) {
	if allow, _ := dp.guard.AllowAnnounce(dp.ctx); !allow {
		return
	}
	if err := dp.mt.SendNow(loc, d); err != nil {
		dp.logger.Debug().Err(err).Msg("announce send failed")
	}
}

func (dp *DomainParticipant) runProtocolLoop() {
	defer dp.wg.Done()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-dp.ctx.Done():
			return
		case <-ticker.C:
			dp.tick()
		}
	}
}

func (dp *DomainParticipant) tick() {
	dp.spdpDetector.TombstoneExpired(time.Now())

	if dp.guard.ShouldPauseDiscovery() {
		return
	}

	for _, sw := range dp.snapshotStatefulWriters() {
		if !dp.guard.AllowOutbound() {
			continue
		}
		sw.SendUnsentChanges(dp.sendDataToReader, dp.sendGapToReader)
		sw.SendRequestedChanges(dp.sendDataToReader, dp.sendGapToReader)
		if sw.Reliability == rtpstypes.ReliabilityReliable {
			sw.SendHeartbeat(dp.sendHeartbeatToReader)
		}
	}
	for _, sr := range dp.snapshotStatefulReaders() {
		if sr.Reliability == rtpstypes.ReliabilityReliable {
			sr.SendAckNacks(dp.sendAckNack)
		}
	}

	dp.mt.Flush()
}

// snapshotStatefulWriters and snapshotStatefulReaders copy the lookup
// table's current entries out under its lock, so the protocol tick can
// drive each endpoint's send path without holding the lock across network
// I/O while CreateDataWriter/Reader or Delete* run concurrently.
func (dp *DomainParticipant) snapshotStatefulWriters() []*writer.StatefulWriter {
	dp.lookup.RLock()
	defer dp.lookup.RUnlock()
	out := make([]*writer.StatefulWriter, 0, len(dp.lookup.StatefulWriters))
	for _, sw := range dp.lookup.StatefulWriters {
		out = append(out, sw)
	}
	return out
}

func (dp *DomainParticipant) snapshotStatefulReaders() []*reader.StatefulReader {
	dp.lookup.RLock()
	defer dp.lookup.RUnlock()
	out := make([]*reader.StatefulReader, 0, len(dp.lookup.StatefulReaders))
	for _, sr := range dp.lookup.StatefulReaders {
		out = append(out, sr)
	}
	return out
}

func (dp *DomainParticipant) sendDataToReader(rp *endpoint.ReaderProxy, d wire.DataSubmessage) {
	loc := firstLocator(rp.UnicastLocatorList, rp.MulticastLocatorList)
	if loc == rtpstypes.LocatorInvalid {
		return
	}
	dp.mt.Enqueue(loc, d)
	telemetry.IncrementSubmessageSent("DATA")
}

func (dp *DomainParticipant) sendGapToReader(rp *endpoint.ReaderProxy, g wire.GapSubmessage) {
	loc := firstLocator(rp.UnicastLocatorList, rp.MulticastLocatorList)
	if loc == rtpstypes.LocatorInvalid {
		return
	}
	dp.mt.Enqueue(loc, g)
	telemetry.IncrementSubmessageSent("GAP")
}

func (dp *DomainParticipant) sendHeartbeatToReader(rp *endpoint.ReaderProxy, h wire.HeartbeatSubmessage) {
	loc := firstLocator(rp.UnicastLocatorList, rp.MulticastLocatorList)
	if loc == rtpstypes.LocatorInvalid {
		return
	}
	dp.mt.Enqueue(loc, h)
	telemetry.IncrementSubmessageSent("HEARTBEAT")
}

func (dp *DomainParticipant) sendAckNack(wp *endpoint.WriterProxy, a wire.AckNackSubmessage) {
	loc := firstLocator(wp.UnicastLocatorList, wp.MulticastLocatorList)
	if loc == rtpstypes.LocatorInvalid {
		return
	}
	dp.mt.Enqueue(loc, a)
	telemetry.IncrementSubmessageSent("ACKNACK")
}
