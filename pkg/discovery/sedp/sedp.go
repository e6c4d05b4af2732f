// Package sedp implements the Simple Endpoint Discovery Protocol: the six
// reliable stateful builtin endpoints (publications, subscriptions, topics,
// each an announcer/detector pair) a participant uses to tell its peers
// about its user-defined DataWriters/DataReaders/Topics, and the
// QoS-gated matching trigger that turns a discovered endpoint into a local
// reader-proxy or writer-proxy.
package sedp

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
	"github.com/odin-rtps/rtps/pkg/writer"
)

// DiscoveredEndpointData is what an Announcer publishes for one local
// DataWriter or DataReader: enough for a peer to build a matching proxy.
type DiscoveredEndpointData struct {
	EndpointGuid         rtpstypes.GUID
	TopicName            string
	TypeName             string
	Qos                  qos.Policies
	UnicastLocatorList   []rtpstypes.Locator
	MulticastLocatorList []rtpstypes.Locator
}

// DiscoveredTopicData is what the TopicsWriter publishes for one local
// Topic, informational only: it carries no locators and matches nothing by
// itself.
type DiscoveredTopicData struct {
	TopicName string
	TypeName  string
	Qos       qos.Policies
}

func encodeQos(pl wire.ParameterList, q qos.Policies) wire.ParameterList {
	add := func(id wire.ParameterId, v []byte) {
		pl.Parameters = append(pl.Parameters, wire.Parameter{ID: id, Value: v})
	}
	add(wire.PIDReliability, []byte{byte(q.Reliability.Kind), 0, 0, 0})
	add(wire.PIDDurability, []byte{byte(q.Durability.Kind), 0, 0, 0})
	add(wire.PIDOwnership, []byte{byte(q.Ownership.Kind), 0, 0, 0})
	add(wire.PIDDestinationOrder, []byte{byte(q.DestinationOrder.Kind), 0, 0, 0})

	liveliness := make([]byte, 12)
	wire.ByteOrder.PutUint32(liveliness[0:4], uint32(q.Liveliness.Kind))
	wire.ByteOrder.PutUint32(liveliness[4:8], uint32(q.Liveliness.LeaseDuration/time.Second))
	wire.ByteOrder.PutUint32(liveliness[8:12], uint32(q.Liveliness.LeaseDuration%time.Second))
	add(wire.PIDLiveliness, liveliness)

	deadline := make([]byte, 8)
	wire.ByteOrder.PutUint32(deadline[0:4], uint32(q.Deadline.Period/time.Second))
	wire.ByteOrder.PutUint32(deadline[4:8], uint32(q.Deadline.Period%time.Second))
	add(wire.PIDDeadline, deadline)

	return pl
}

func decodeQos(pl wire.ParameterList) qos.Policies {
	q := qos.Default()
	if v, ok := pl.Get(wire.PIDReliability); ok && len(v) >= 1 {
		q.Reliability.Kind = int(v[0])
	}
	if v, ok := pl.Get(wire.PIDDurability); ok && len(v) >= 1 {
		q.Durability.Kind = qos.DurabilityKind(v[0])
	}
	if v, ok := pl.Get(wire.PIDOwnership); ok && len(v) >= 1 {
		q.Ownership.Kind = qos.OwnershipKind(v[0])
	}
	if v, ok := pl.Get(wire.PIDDestinationOrder); ok && len(v) >= 1 {
		q.DestinationOrder.Kind = qos.DestinationOrderKind(v[0])
	}
	if v, ok := pl.Get(wire.PIDLiveliness); ok && len(v) >= 12 {
		q.Liveliness.Kind = qos.LivelinessKind(wire.ByteOrder.Uint32(v[0:4]))
		sec := wire.ByteOrder.Uint32(v[4:8])
		nsec := wire.ByteOrder.Uint32(v[8:12])
		q.Liveliness.LeaseDuration = time.Duration(sec)*time.Second + time.Duration(nsec)
	}
	if v, ok := pl.Get(wire.PIDDeadline); ok && len(v) >= 8 {
		sec := wire.ByteOrder.Uint32(v[0:4])
		nsec := wire.ByteOrder.Uint32(v[4:8])
		q.Deadline.Period = time.Duration(sec)*time.Second + time.Duration(nsec)
	}
	return q
}

// EncodeDiscoveredEndpointData renders data as a ParameterList.
func EncodeDiscoveredEndpointData(data DiscoveredEndpointData) wire.ParameterList {
	var pl wire.ParameterList
	add := func(id wire.ParameterId, v []byte) {
		pl.Parameters = append(pl.Parameters, wire.Parameter{ID: id, Value: v})
	}

	guid := make([]byte, 0, 16)
	guid = wire.EncodeGuidPrefix(guid, data.EndpointGuid.Prefix)
	guid = wire.EncodeEntityId(guid, data.EndpointGuid.EntityId)
	add(wire.PIDEndpointGuid, guid)
	add(wire.PIDTopicName, wire.EncodeString(nil, wire.ByteOrder, data.TopicName))
	add(wire.PIDTypeName, wire.EncodeString(nil, wire.ByteOrder, data.TypeName))
	for _, loc := range data.UnicastLocatorList {
		add(wire.PIDUnicastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}
	for _, loc := range data.MulticastLocatorList {
		add(wire.PIDMulticastLocator, wire.EncodeLocator(nil, wire.ByteOrder, loc))
	}

	return encodeQos(pl, data.Qos)
}

// DecodeDiscoveredEndpointData recovers a DiscoveredEndpointData from a
// received ParameterList.
func DecodeDiscoveredEndpointData(pl wire.ParameterList) DiscoveredEndpointData {
	var data DiscoveredEndpointData

	if v, ok := pl.Get(wire.PIDEndpointGuid); ok && len(v) >= 16 {
		prefix, rest, err := wire.DecodeGuidPrefix(v)
		if err == nil {
			entityId, _, err := wire.DecodeEntityId(rest)
			if err == nil {
				data.EndpointGuid = rtpstypes.GUID{Prefix: prefix, EntityId: entityId}
			}
		}
	}
	if v, ok := pl.Get(wire.PIDTopicName); ok {
		if s, _, err := wire.DecodeString(v, wire.ByteOrder); err == nil {
			data.TopicName = s
		}
	}
	if v, ok := pl.Get(wire.PIDTypeName); ok {
		if s, _, err := wire.DecodeString(v, wire.ByteOrder); err == nil {
			data.TypeName = s
		}
	}
	for _, p := range pl.Parameters {
		switch p.ID {
		case wire.PIDUnicastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				data.UnicastLocatorList = append(data.UnicastLocatorList, loc)
			}
		case wire.PIDMulticastLocator:
			if loc, _, err := wire.DecodeLocator(p.Value, wire.ByteOrder); err == nil {
				data.MulticastLocatorList = append(data.MulticastLocatorList, loc)
			}
		}
	}
	data.Qos = decodeQos(pl)
	return data
}

// EncodeDiscoveredTopicData renders data as a ParameterList.
func EncodeDiscoveredTopicData(data DiscoveredTopicData) wire.ParameterList {
	var pl wire.ParameterList
	pl.Parameters = append(pl.Parameters,
		wire.Parameter{ID: wire.PIDTopicName, Value: wire.EncodeString(nil, wire.ByteOrder, data.TopicName)},
		wire.Parameter{ID: wire.PIDTypeName, Value: wire.EncodeString(nil, wire.ByteOrder, data.TypeName)},
	)
	return encodeQos(pl, data.Qos)
}

// DecodeDiscoveredTopicData recovers a DiscoveredTopicData from a received
// ParameterList.
func DecodeDiscoveredTopicData(pl wire.ParameterList) DiscoveredTopicData {
	var data DiscoveredTopicData
	if v, ok := pl.Get(wire.PIDTopicName); ok {
		if s, _, err := wire.DecodeString(v, wire.ByteOrder); err == nil {
			data.TopicName = s
		}
	}
	if v, ok := pl.Get(wire.PIDTypeName); ok {
		if s, _, err := wire.DecodeString(v, wire.ByteOrder); err == nil {
			data.TypeName = s
		}
	}
	data.Qos = decodeQos(pl)
	return data
}

// LocalWriter is a local DataWriter as seen by the matching trigger: enough
// identity and QoS to judge compatibility, plus callbacks to mutate its
// underlying StatefulWriter's matched-reader set.
type LocalWriter struct {
	Guid                rtpstypes.GUID
	TopicName, TypeName string
	Qos                 qos.Policies
	AddMatchedReader    func(*endpoint.ReaderProxy)
	RemoveMatchedReader func(rtpstypes.GUID)
}

// LocalReader is a local DataReader as seen by the matching trigger.
type LocalReader struct {
	Guid                rtpstypes.GUID
	TopicName, TypeName string
	Qos                 qos.Policies
	AddMatchedWriter    func(*endpoint.WriterProxy)
	RemoveMatchedWriter func(rtpstypes.GUID)
}

// Registry is implemented by the entity container layer (the domain
// participant) so SEDP can enumerate the local endpoints a newly discovered
// remote endpoint might match.
type Registry interface {
	LocalWriters(topicName string) []LocalWriter
	LocalReaders(topicName string) []LocalReader
}

// SEDP owns the six builtin announcer/detector endpoints of one
// participant and drives QoS-gated matching against a Registry of local
// endpoints.
type SEDP struct {
	logger zerolog.Logger

	PublicationsWriter  *writer.StatefulWriter
	PublicationsReader  *reader.StatefulReader
	SubscriptionsWriter *writer.StatefulWriter
	SubscriptionsReader *reader.StatefulReader
	TopicsWriter        *writer.StatefulWriter
	TopicsReader        *reader.StatefulReader

	registry Registry
}

// NewSEDP returns the six builtin endpoints for guidPrefix, wired to
// registry for match lookups.
func NewSEDP(logger zerolog.Logger, guidPrefix rtpstypes.GuidPrefix, registry Registry) *SEDP {
	g := func(id rtpstypes.EntityId) rtpstypes.GUID { return rtpstypes.GUID{Prefix: guidPrefix, EntityId: id} }
	return &SEDP{
		logger:              logger.With().Str("component", "sedp").Logger(),
		PublicationsWriter:  writer.NewStatefulWriter(g(rtpstypes.EntityIdSEDPBuiltinPublicationsAnnouncer), rtpstypes.ReliabilityReliable),
		PublicationsReader:  reader.NewStatefulReader(g(rtpstypes.EntityIdSEDPBuiltinPublicationsDetector), rtpstypes.ReliabilityReliable),
		SubscriptionsWriter: writer.NewStatefulWriter(g(rtpstypes.EntityIdSEDPBuiltinSubscriptionsAnnouncer), rtpstypes.ReliabilityReliable),
		SubscriptionsReader: reader.NewStatefulReader(g(rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector), rtpstypes.ReliabilityReliable),
		TopicsWriter:        writer.NewStatefulWriter(g(rtpstypes.EntityIdSEDPBuiltinTopicsAnnouncer), rtpstypes.ReliabilityReliable),
		TopicsReader:        reader.NewStatefulReader(g(rtpstypes.EntityIdSEDPBuiltinTopicsDetector), rtpstypes.ReliabilityReliable),
		registry:            registry,
	}
}

// AnnouncePublication publishes data via the PublicationsWriter, triggering
// every matched SEDP publications-detector reader-proxy to receive it.
func (s *SEDP) AnnouncePublication(data DiscoveredEndpointData) {
	pl := EncodeDiscoveredEndpointData(data)
	s.PublicationsWriter.NewChange(rtpstypes.ChangeKindAlive, pl.Encode(nil, wire.ByteOrder), rtpstypes.InstanceHandle{})
}

// AnnounceSubscription publishes data via the SubscriptionsWriter.
func (s *SEDP) AnnounceSubscription(data DiscoveredEndpointData) {
	pl := EncodeDiscoveredEndpointData(data)
	s.SubscriptionsWriter.NewChange(rtpstypes.ChangeKindAlive, pl.Encode(nil, wire.ByteOrder), rtpstypes.InstanceHandle{})
}

// AnnounceTopic publishes data via the TopicsWriter.
func (s *SEDP) AnnounceTopic(data DiscoveredTopicData) {
	pl := EncodeDiscoveredTopicData(data)
	s.TopicsWriter.NewChange(rtpstypes.ChangeKindAlive, pl.Encode(nil, wire.ByteOrder), rtpstypes.InstanceHandle{})
}

// HandlePublicationData feeds an inbound SEDP publications DATA through the
// detector reader, then attempts to match it against every local
// DataReader on the same topic.
func (s *SEDP) HandlePublicationData(writerGuidPrefix rtpstypes.GuidPrefix, d wire.DataSubmessage) {
	s.PublicationsReader.ReceiveData(writerGuidPrefix, d)
	if s.registry == nil {
		return
	}
	pl, _, err := wire.DecodeParameterList(d.SerializedPayload, wire.ByteOrder)
	if err != nil {
		return
	}
	pub := DecodeDiscoveredEndpointData(pl)
	for _, lr := range s.registry.LocalReaders(pub.TopicName) {
		if lr.TypeName != pub.TypeName {
			continue
		}
		s.tryMatchReader(lr, pub)
	}
}

// HandleSubscriptionData feeds an inbound SEDP subscriptions DATA through
// the detector reader, then attempts to match it against every local
// DataWriter on the same topic.
func (s *SEDP) HandleSubscriptionData(writerGuidPrefix rtpstypes.GuidPrefix, d wire.DataSubmessage) {
	s.SubscriptionsReader.ReceiveData(writerGuidPrefix, d)
	if s.registry == nil {
		return
	}
	pl, _, err := wire.DecodeParameterList(d.SerializedPayload, wire.ByteOrder)
	if err != nil {
		return
	}
	sub := DecodeDiscoveredEndpointData(pl)
	for _, lw := range s.registry.LocalWriters(sub.TopicName) {
		if lw.TypeName != sub.TypeName {
			continue
		}
		s.tryMatchWriter(lw, sub)
	}
}

// HandleTopicData feeds an inbound SEDP topics DATA through the detector
// reader. Topic data is informational and never triggers matching on its
// own.
func (s *SEDP) HandleTopicData(writerGuidPrefix rtpstypes.GuidPrefix, d wire.DataSubmessage) {
	s.TopicsReader.ReceiveData(writerGuidPrefix, d)
}

func (s *SEDP) tryMatchReader(lr LocalReader, pub DiscoveredEndpointData) {
	ok, mismatches := qos.CheckCompatible(pub.Qos, lr.Qos)
	if !ok {
		s.logger.Debug().Str("topic", pub.TopicName).Int("mismatches", len(mismatches)).Msg("REQUESTED_INCOMPATIBLE_QOS")
		return
	}
	wp := endpoint.NewWriterProxy(pub.EndpointGuid, pub.UnicastLocatorList, pub.MulticastLocatorList)
	lr.AddMatchedWriter(wp)
}

func (s *SEDP) tryMatchWriter(lw LocalWriter, sub DiscoveredEndpointData) {
	ok, mismatches := qos.CheckCompatible(lw.Qos, sub.Qos)
	if !ok {
		s.logger.Debug().Str("topic", sub.TopicName).Int("mismatches", len(mismatches)).Msg("OFFERED_INCOMPATIBLE_QOS")
		return
	}
	rp := endpoint.NewReaderProxy(sub.EndpointGuid, rtpstypes.EntityIdUnknown, sub.UnicastLocatorList, sub.MulticastLocatorList, false)
	lw.AddMatchedReader(rp)
}

// MatchParticipant wires this participant's six SEDP endpoints to the
// corresponding builtin endpoint of a newly discovered peer, gated on the
// peer's advertised BuiltinEndpointSet — the ParticipantDiscovery step that
// must run once per discovered participant before any SEDP DATA it sends
// can reach these readers/writers at all.
func (s *SEDP) MatchParticipant(peer rtpstypes.ParticipantProxy) {
	unicast := peer.MetatrafficUnicastLocatorList
	multicast := peer.MetatrafficMulticastLocatorList

	addReader := func(w *writer.StatefulWriter, detectorId rtpstypes.EntityId, has rtpstypes.BuiltinEndpointSet) {
		if !peer.AvailableBuiltinEndpoints.Has(has) {
			return
		}
		guid := rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: detectorId}
		w.MatchedReaderAdd(endpoint.NewReaderProxy(guid, rtpstypes.EntityIdUnknown, unicast, multicast, false))
	}
	addWriter := func(r *reader.StatefulReader, announcerId rtpstypes.EntityId, has rtpstypes.BuiltinEndpointSet) {
		if !peer.AvailableBuiltinEndpoints.Has(has) {
			return
		}
		guid := rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: announcerId}
		r.MatchedWriterAdd(endpoint.NewWriterProxy(guid, unicast, multicast))
	}

	addReader(s.PublicationsWriter, rtpstypes.EntityIdSEDPBuiltinPublicationsDetector, rtpstypes.BuiltinEndpointPublicationsDetector)
	addWriter(s.PublicationsReader, rtpstypes.EntityIdSEDPBuiltinPublicationsAnnouncer, rtpstypes.BuiltinEndpointPublicationsAnnouncer)
	addReader(s.SubscriptionsWriter, rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector, rtpstypes.BuiltinEndpointSubscriptionsDetector)
	addWriter(s.SubscriptionsReader, rtpstypes.EntityIdSEDPBuiltinSubscriptionsAnnouncer, rtpstypes.BuiltinEndpointSubscriptionsAnnouncer)
	addReader(s.TopicsWriter, rtpstypes.EntityIdSEDPBuiltinTopicsDetector, rtpstypes.BuiltinEndpointTopicsDetector)
	addWriter(s.TopicsReader, rtpstypes.EntityIdSEDPBuiltinTopicsAnnouncer, rtpstypes.BuiltinEndpointTopicsAnnouncer)
}

// RemoveParticipant drops every SEDP proxy belonging to a participant that
// SPDP has tombstoned.
func (s *SEDP) RemoveParticipant(prefix rtpstypes.GuidPrefix) {
	s.PublicationsWriter.MatchedReaderRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinPublicationsDetector})
	s.PublicationsReader.MatchedWriterRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinPublicationsAnnouncer})
	s.SubscriptionsWriter.MatchedReaderRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector})
	s.SubscriptionsReader.MatchedWriterRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinSubscriptionsAnnouncer})
	s.TopicsWriter.MatchedReaderRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinTopicsDetector})
	s.TopicsReader.MatchedWriterRemove(rtpstypes.GUID{Prefix: prefix, EntityId: rtpstypes.EntityIdSEDPBuiltinTopicsAnnouncer})
}
