package sedp

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

func testEndpointData(topic string, q qos.Policies) DiscoveredEndpointData {
	return DiscoveredEndpointData{
		EndpointGuid: rtpstypes.GUID{
			Prefix:   rtpstypes.GuidPrefix{7, 7, 7},
			EntityId: rtpstypes.EntityId{Key: [3]byte{0, 0, 1}, Kind: rtpstypes.EntityKindUserDefinedWriterKey},
		},
		TopicName: topic,
		TypeName:  "Foo",
		Qos:       q,
		UnicastLocatorList: []rtpstypes.Locator{
			rtpstypes.NewLocatorUDPv4([4]byte{10, 0, 0, 1}, 7411),
		},
	}
}

func TestEncodeDecodeDiscoveredEndpointDataRoundTrips(t *testing.T) {
	q := qos.Default()
	q.Reliability.Kind = qos.ReliabilityReliable
	data := testEndpointData("temperature", q)

	pl := EncodeDiscoveredEndpointData(data)
	decoded := DecodeDiscoveredEndpointData(pl)

	assert.Equal(t, data.EndpointGuid, decoded.EndpointGuid)
	assert.Equal(t, data.TopicName, decoded.TopicName)
	assert.Equal(t, data.TypeName, decoded.TypeName)
	assert.Equal(t, qos.ReliabilityReliable, decoded.Qos.Reliability.Kind)
	require.Len(t, decoded.UnicastLocatorList, 1)
	assert.Equal(t, data.UnicastLocatorList[0], decoded.UnicastLocatorList[0])
}

type fakeRegistry struct {
	writers []LocalWriter
	readers []LocalReader
}

func (f *fakeRegistry) LocalWriters(topic string) []LocalWriter { return f.writers }
func (f *fakeRegistry) LocalReaders(topic string) []LocalReader { return f.readers }

func TestHandlePublicationDataMatchesCompatibleReader(t *testing.T) {
	var matched *endpoint.WriterProxy
	reg := &fakeRegistry{readers: []LocalReader{
		{
			TopicName: "temperature",
			TypeName:  "Foo",
			Qos:       qos.Default(),
			AddMatchedWriter: func(wp *endpoint.WriterProxy) {
				matched = wp
			},
		},
	}}
	s := NewSEDP(zerolog.Nop(), rtpstypes.GuidPrefix{1, 1, 1}, reg)

	pub := testEndpointData("temperature", qos.Default())
	pl := EncodeDiscoveredEndpointData(pub)
	d := wire.DataSubmessage{DataFlag: true, SerializedPayload: pl.Encode(nil, wire.ByteOrder), WriterSN: 1}

	s.HandlePublicationData(pub.EndpointGuid.Prefix, d)

	require.NotNil(t, matched)
	assert.Equal(t, pub.EndpointGuid, matched.RemoteWriterGuid)
}

func TestHandlePublicationDataSuppressesIncompatibleReliability(t *testing.T) {
	called := false
	strictQos := qos.Default()
	strictQos.Reliability.Kind = qos.ReliabilityReliable
	reg := &fakeRegistry{readers: []LocalReader{
		{
			TopicName:        "temperature",
			TypeName:         "Foo",
			Qos:              strictQos,
			AddMatchedWriter: func(*endpoint.WriterProxy) { called = true },
		},
	}}
	s := NewSEDP(zerolog.Nop(), rtpstypes.GuidPrefix{1, 1, 1}, reg)

	pub := testEndpointData("temperature", qos.Default())
	pl := EncodeDiscoveredEndpointData(pub)
	d := wire.DataSubmessage{DataFlag: true, SerializedPayload: pl.Encode(nil, wire.ByteOrder), WriterSN: 1}

	s.HandlePublicationData(pub.EndpointGuid.Prefix, d)

	assert.False(t, called)
}

func TestMatchParticipantAddsProxiesGatedOnBuiltinEndpointSet(t *testing.T) {
	s := NewSEDP(zerolog.Nop(), rtpstypes.GuidPrefix{1, 1, 1}, nil)

	peer := rtpstypes.ParticipantProxy{
		GuidPrefix:                rtpstypes.GuidPrefix{2, 2, 2},
		AvailableBuiltinEndpoints: rtpstypes.BuiltinEndpointPublicationsDetector,
	}
	s.MatchParticipant(peer)

	_, ok := s.PublicationsWriter.MatchedReaderLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinPublicationsDetector})
	assert.True(t, ok)

	_, ok = s.SubscriptionsWriter.MatchedReaderLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector})
	assert.False(t, ok)
}

func TestRemoveParticipantDropsAllSixProxies(t *testing.T) {
	s := NewSEDP(zerolog.Nop(), rtpstypes.GuidPrefix{1, 1, 1}, nil)
	peer := rtpstypes.ParticipantProxy{
		GuidPrefix: rtpstypes.GuidPrefix{2, 2, 2},
		AvailableBuiltinEndpoints: rtpstypes.BuiltinEndpointPublicationsDetector |
			rtpstypes.BuiltinEndpointSubscriptionsDetector | rtpstypes.BuiltinEndpointTopicsDetector |
			rtpstypes.BuiltinEndpointPublicationsAnnouncer | rtpstypes.BuiltinEndpointSubscriptionsAnnouncer |
			rtpstypes.BuiltinEndpointTopicsAnnouncer,
	}
	s.MatchParticipant(peer)
	s.RemoveParticipant(peer.GuidPrefix)

	_, ok := s.PublicationsWriter.MatchedReaderLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinPublicationsDetector})
	assert.False(t, ok)
	_, ok = s.SubscriptionsWriter.MatchedReaderLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinSubscriptionsDetector})
	assert.False(t, ok)
	_, ok = s.TopicsWriter.MatchedReaderLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinTopicsDetector})
	assert.False(t, ok)
	_, ok = s.PublicationsReader.MatchedWriterLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinPublicationsAnnouncer})
	assert.False(t, ok)
	_, ok = s.SubscriptionsReader.MatchedWriterLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinSubscriptionsAnnouncer})
	assert.False(t, ok)
	_, ok = s.TopicsReader.MatchedWriterLookup(rtpstypes.GUID{Prefix: peer.GuidPrefix, EntityId: rtpstypes.EntityIdSEDPBuiltinTopicsAnnouncer})
	assert.False(t, ok)
}
