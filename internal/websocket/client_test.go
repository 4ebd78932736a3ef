package websocket

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePumpForwardsMessages(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, nil)

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	client.send <- []byte(`{"type":"status"}`)
	close(client.send)
	<-done

	messages := conn.GetWrittenMessages()
	require.GreaterOrEqual(t, len(messages), 2)
	assert.Equal(t, websocket.TextMessage, messages[0].Type)
	assert.JSONEq(t, `{"type":"status"}`, string(messages[0].Data))
	assert.Equal(t, websocket.CloseMessage, messages[len(messages)-1].Type)
}

func TestClientTimeouts(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := NewClientWithConnection(hub, NewMockConnection(), nil)

	assert.Equal(t, defaultPongWait, client.pongWait)
	assert.Equal(t, (defaultPongWait*9)/10, client.pingPeriod)

	client.SetTimeouts(20*time.Second, 45*time.Second)
	assert.Equal(t, 45*time.Second, client.pongWait)
	assert.Equal(t, 20*time.Second, client.pingPeriod)

	// A ping interval at or past the deadline would let connections time
	// out between pings, so it is re-derived instead.
	client.SetTimeouts(time.Minute, 30*time.Second)
	assert.Equal(t, 30*time.Second, client.pongWait)
	assert.Equal(t, 27*time.Second, client.pingPeriod)

	client.SetTimeouts(0, 0)
	assert.Equal(t, defaultPongWait, client.pongWait)
	assert.Equal(t, (defaultPongWait*9)/10, client.pingPeriod)
}

func TestReadPumpUnregistersOnError(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()
	defer hub.Stop()

	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, nil)
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The mock returns an error once its scripted frames run out, which
	// ends the pump.
	conn.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)
	go client.ReadPump()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)
	assert.True(t, conn.Closed)
	assert.Equal(t, int64(maxMessageSize), conn.ReadLimit)
}
