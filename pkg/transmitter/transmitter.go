// Package transmitter implements the RTPS MessageTransmitter: gathering
// pending submessages for a locator, grouping them into one wire.Message
// per destination, and handing the framed bytes to a sender.
package transmitter

import (
	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/wire"
)

// Sender delivers a framed RTPS message to a single locator. Implemented
// by pkg/transport.UDPTransport in production and by a recording fake in
// tests.
type Sender interface {
	SendMessage(loc rtpstypes.Locator, data []byte) error
}

// pending accumulates submessages destined for one locator until Flush
// drains them into a single framed message, matching the standard's
// allowance to coalesce consecutive submessages bound for the same
// destination into one UDP datagram.
type pending struct {
	submessages []wire.Submessage
}

// MessageTransmitter batches outbound submessages per destination locator
// and frames them into RTPS messages on Flush.
type MessageTransmitter struct {
	logger     zerolog.Logger
	guidPrefix rtpstypes.GuidPrefix
	sender     Sender

	queues map[rtpstypes.Locator]*pending
}

// NewMessageTransmitter returns a transmitter that stamps outgoing messages
// with guidPrefix as the source and hands framed bytes to sender.
func NewMessageTransmitter(logger zerolog.Logger, guidPrefix rtpstypes.GuidPrefix, sender Sender) *MessageTransmitter {
	return &MessageTransmitter{
		logger:     logger.With().Str("component", "transmitter").Logger(),
		guidPrefix: guidPrefix,
		sender:     sender,
		queues:     make(map[rtpstypes.Locator]*pending),
	}
}

// Enqueue appends sm to the batch destined for loc. Nothing is sent until
// Flush is called.
func (mt *MessageTransmitter) Enqueue(loc rtpstypes.Locator, sm wire.Submessage) {
	q, ok := mt.queues[loc]
	if !ok {
		q = &pending{}
		mt.queues[loc] = q
	}
	q.submessages = append(q.submessages, sm)
}

// Flush frames and sends every queued batch, then clears the queues. A send
// failure for one locator is logged and does not prevent the others from
// flushing.
func (mt *MessageTransmitter) Flush() {
	for loc, q := range mt.queues {
		if len(q.submessages) == 0 {
			continue
		}
		msg := wire.Message{
			Header: wire.MessageHeader{
				Version:    rtpstypes.ProtocolVersion2_4,
				VendorID:   rtpstypes.VendorIdUnknown,
				GuidPrefix: mt.guidPrefix,
			},
			Submessages: q.submessages,
		}
		if err := mt.sender.SendMessage(loc, msg.Encode()); err != nil {
			mt.logger.Debug().Err(err).Msg("send failed")
		}
	}
	mt.queues = make(map[rtpstypes.Locator]*pending)
}

// SendNow frames and immediately sends a single-submessage message to loc,
// bypassing the batch queue. Used for latency-sensitive traffic such as an
// immediate ACKNACK reply.
func (mt *MessageTransmitter) SendNow(loc rtpstypes.Locator, sm wire.Submessage) error {
	msg := wire.Message{
		Header: wire.MessageHeader{
			Version:    rtpstypes.ProtocolVersion2_4,
			VendorID:   rtpstypes.VendorIdUnknown,
			GuidPrefix: mt.guidPrefix,
		},
		Submessages: []wire.Submessage{sm},
	}
	return mt.sender.SendMessage(loc, msg.Encode())
}
