package transport

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransportSendReceive(t *testing.T) {
	logger := zerolog.Nop()

	server, err := NewUDPUnicastTransport(logger, 0)
	require.NoError(t, err)
	defer server.Close()

	client, err := NewUDPUnicastTransport(logger, 0)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ReceivedPacket, 1)
	go server.ReadLoop(ctx, func(p ReceivedPacket) { received <- p })

	serverAddr, err := LocatorToUDPAddr(server.Locator())
	require.NoError(t, err)
	serverAddr.IP = serverAddr.IP.To4()

	require.NoError(t, client.SendTo([]byte("hello"), serverAddr))

	select {
	case p := <-received:
		assert.Equal(t, []byte("hello"), p.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestUDPTransportCloseStopsReadLoop(t *testing.T) {
	logger := zerolog.Nop()
	tr, err := NewUDPUnicastTransport(logger, 0)
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		tr.ReadLoop(ctx, func(ReceivedPacket) {})
		close(done)
	}()

	require.NoError(t, tr.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after close")
	}
}
