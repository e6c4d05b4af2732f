package dds

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/internal/config"
	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/discovery/sedp"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

func testConfig() config.Config {
	return config.Config{
		DomainId:           0,
		SPDPLeaseDuration:  9_000_000_000,
		MaxGoroutines:      1000,
		MaxAnnounceRate:    50,
		MaxOutboundRate:    2000,
		CPURejectThreshold: 75.0,
		CPUPauseThreshold:  80.0,
		MemoryLimit:        536870912,
		MetricsInterval:    time.Second,
	}
}

func newTestParticipant(t *testing.T) *DomainParticipant {
	t.Helper()
	dp, err := NewDomainParticipant(zerolog.Nop(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dp.Close() })
	return dp
}

func TestNewDomainParticipantBindsTransports(t *testing.T) {
	dp := newTestParticipant(t)
	assert.NotEqual(t, rtpstypes.LocatorInvalid, dp.unicastTransport.Locator())
	assert.NotEqual(t, rtpstypes.GuidPrefix{}, dp.guidPrefix)
}

func TestCreateDataWriterRegistersAndAnnounces(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	writers := dp.LocalWriters("temperature")
	require.Len(t, writers, 1)
	assert.Equal(t, dw.Guid(), writers[0].Guid)
	assert.Equal(t, "SensorSample", writers[0].TypeName)

	_, ok := dp.lookup.StatefulWriters[dw.Guid().EntityId]
	assert.True(t, ok)
}

func TestCreateDataReaderRegistersAndAnnounces(t *testing.T) {
	dp := newTestParticipant(t)
	sub := dp.CreateSubscriber()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dr, err := sub.CreateDataReader(topic, qos.Default())
	require.NoError(t, err)

	readers := dp.LocalReaders("temperature")
	require.Len(t, readers, 1)
	assert.Equal(t, dr.Guid(), readers[0].Guid)

	_, ok := dp.lookup.StatefulReaders[dr.Guid().EntityId]
	assert.True(t, ok)
}

func TestCreateDataWriterRefusedOverCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.CPURejectThreshold = -1
	dp, err := NewDomainParticipant(zerolog.Nop(), cfg)
	require.NoError(t, err)
	defer dp.Close()

	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	_, err = pub.CreateDataWriter(topic, qos.Default())
	assert.Error(t, err)
}

func TestSEDPMatchesLocalWriterAgainstRemoteSubscription(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	remoteReader := rtpstypes.GUID{
		Prefix:   rtpstypes.GuidPrefix{9, 9, 9},
		EntityId: rtpstypes.EntityId{Key: [3]byte{0, 0, 7}, Kind: rtpstypes.EntityKindUserDefinedReaderKey},
	}
	sub := sedp.DiscoveredEndpointData{
		EndpointGuid: remoteReader,
		TopicName:    "temperature",
		TypeName:     "SensorSample",
		Qos:          qos.Default(),
	}
	pl := sedp.EncodeDiscoveredEndpointData(sub)
	d := wire.DataSubmessage{DataFlag: true, SerializedPayload: pl.Encode(nil, wire.ByteOrder), WriterSN: 1}

	dp.sedp.HandleSubscriptionData(remoteReader.Prefix, d)

	assert.True(t, dw.IsMatchedWith(remoteReader))
}

func TestPublisherDeleteDataWriterRemovesFromLookup(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	require.NoError(t, pub.DeleteDataWriter(dw))

	_, ok := dp.lookup.StatefulWriters[dw.Guid().EntityId]
	assert.False(t, ok)
	assert.Empty(t, dp.LocalWriters("temperature"))

	err = pub.DeleteDataWriter(dw)
	assert.ErrorIs(t, err, ddserror.ErrAlreadyDeleted)
}

func TestPublisherDeleteDataWriterWrongOwnerRejected(t *testing.T) {
	dp := newTestParticipant(t)
	pubA := dp.CreatePublisher()
	pubB := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pubA.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	err = pubB.DeleteDataWriter(dw)
	assert.ErrorIs(t, err, ddserror.ErrPreconditionNotMet)
}

func TestPublisherDeletePreconditionNotMetWithLiveWriter(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	_, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	assert.ErrorIs(t, pub.Delete(), ddserror.ErrPreconditionNotMet)
}

func TestDomainParticipantDeletePreconditionNotMetWithLivePublisher(t *testing.T) {
	dp := newTestParticipant(t)
	dp.CreatePublisher()

	assert.ErrorIs(t, dp.Delete(), ddserror.ErrPreconditionNotMet)
}

func TestDomainParticipantDeleteSucceedsOnceChildrenGone(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)
	require.NoError(t, pub.DeleteDataWriter(dw))
	require.NoError(t, dp.DeletePublisher(pub))

	require.NoError(t, dp.Delete())
	assert.ErrorIs(t, dp.Delete(), ddserror.ErrAlreadyDeleted)
}

func TestDataWriterSetQosRejectsReliabilityChange(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)

	q := dw.Qos()
	q.Reliability.Kind = qos.ReliabilityReliable
	assert.ErrorIs(t, dw.SetQos(q), ddserror.ErrImmutablePolicy)
}

func TestDataWriterWriteIsNoopAfterDelete(t *testing.T) {
	dp := newTestParticipant(t)
	pub := dp.CreatePublisher()
	topic := dp.CreateTopic("temperature", "SensorSample")

	dw, err := pub.CreateDataWriter(topic, qos.Default())
	require.NoError(t, err)
	require.NoError(t, pub.DeleteDataWriter(dw))

	dw.Write([]byte("ignored"))
}
