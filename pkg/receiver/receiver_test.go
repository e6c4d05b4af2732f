package receiver

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-rtps/rtps/pkg/endpoint"
	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
	"github.com/odin-rtps/rtps/pkg/writer"
)

func TestMessageReceiverDispatchesDataToStatelessReader(t *testing.T) {
	readerGuid := rtpstypes.GUID{
		Prefix:   rtpstypes.GuidPrefix{1, 1, 1},
		EntityId: rtpstypes.EntityIdSPDPBuiltinParticipantDetector,
	}
	sr := reader.NewStatelessReader(readerGuid)

	lookup := NewEndpointLookup()
	lookup.StatelessReaders[readerGuid.EntityId] = sr

	mr := NewMessageReceiver(zerolog.Nop(), lookup)

	msg := wire.Message{
		Header: wire.MessageHeader{Version: rtpstypes.ProtocolVersion2_4, GuidPrefix: rtpstypes.GuidPrefix{9, 9, 9}},
		Submessages: []wire.Submessage{
			wire.DataSubmessage{
				DataFlag:          true,
				ReaderId:          readerGuid.EntityId,
				WriterId:          rtpstypes.EntityIdSPDPBuiltinParticipantAnnouncer,
				WriterSN:          1,
				SerializedPayload: []byte("spdp-announce"),
			},
		},
	}

	mr.ProcessPacket(msg.Encode())

	require.Equal(t, 1, sr.Cache.Count())
	c, ok := sr.Cache.GetChange(1)
	require.True(t, ok)
	assert.Equal(t, []byte("spdp-announce"), c.Data)
	assert.Equal(t, rtpstypes.GuidPrefix{9, 9, 9}, c.WriterGuid.Prefix)
}

func TestMessageReceiverDropsUndecodablePacket(t *testing.T) {
	mr := NewMessageReceiver(zerolog.Nop(), NewEndpointLookup())
	mr.ProcessPacket([]byte("not an rtps message"))
}

func TestMessageReceiverDispatchesAckNackToStatefulWriter(t *testing.T) {
	writerGuid := rtpstypes.GUID{
		Prefix:   rtpstypes.GuidPrefix{1, 1, 1},
		EntityId: rtpstypes.EntityId{Key: [3]byte{0, 0, 1}, Kind: rtpstypes.EntityKindUserDefinedWriterKey},
	}
	sw := writer.NewStatefulWriter(writerGuid, rtpstypes.ReliabilityReliable)
	sw.NewChange(rtpstypes.ChangeKindAlive, []byte("a"), rtpstypes.InstanceHandle{})
	sw.NewChange(rtpstypes.ChangeKindAlive, []byte("b"), rtpstypes.InstanceHandle{})

	readerEntityId := rtpstypes.EntityId{Key: [3]byte{0, 0, 2}, Kind: rtpstypes.EntityKindUserDefinedReaderKey}
	readerGuidPrefix := rtpstypes.GuidPrefix{2, 2, 2}
	readerGuid := rtpstypes.GUID{Prefix: readerGuidPrefix, EntityId: readerEntityId}
	rp := endpoint.NewReaderProxy(readerGuid, rtpstypes.EntityIdUnknown, nil, nil, false)
	sw.MatchedReaderAdd(rp)

	lookup := NewEndpointLookup()
	lookup.StatefulWriters[writerGuid.EntityId] = sw

	mr := NewMessageReceiver(zerolog.Nop(), lookup)

	msg := wire.Message{
		Header: wire.MessageHeader{Version: rtpstypes.ProtocolVersion2_4, GuidPrefix: readerGuidPrefix},
		Submessages: []wire.Submessage{
			wire.AckNackSubmessage{
				ReaderId:      readerEntityId,
				WriterId:      writerGuid.EntityId,
				ReaderSNState: wire.NewSequenceNumberSet(2, nil),
				Count:         1,
			},
		},
	}
	mr.ProcessPacket(msg.Encode())

	assert.Equal(t, rtpstypes.SequenceNumber(1), rp.HighestAcked())
}
