package transport_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voicelink/go-call-manager/pkg/signaling"
	"github.com/voicelink/go-call-manager/pkg/transport"
)

func startRelay(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(transport.NewRelay())
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string, userID signaling.UserID,
	deviceID signaling.DeviceID) *transport.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := transport.Dial(ctx, url, userID, deviceID)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestRelayRoutesByUserID(t *testing.T) {
	url := startRelay(t)
	alice := dial(t, url, "alice", 1)
	bob := dial(t, url, "bob", 2)

	received := make(chan *transport.Envelope, 1)
	bob.OnEnvelope = func(envelope *transport.Envelope) {
		received <- envelope
	}

	message := &signaling.CallingMessage{
		Busy:              &signaling.BusyMessage{CallID: signaling.CallID{Low: 3}},
		SupportsMultiRing: true,
	}
	require.NoError(t, alice.Send(context.Background(), "bob", message))

	select {
	case envelope := <-received:
		require.Equal(t, signaling.UserID("alice"), envelope.From)
		require.Equal(t, signaling.DeviceID(1), envelope.FromDeviceID)
		require.NotNil(t, envelope.Message.Busy)
		require.Equal(t, signaling.CallID{Low: 3}, envelope.Message.Busy.CallID)
		require.True(t, envelope.Message.SupportsMultiRing)
	case <-time.After(5 * time.Second):
		t.Fatal("envelope never arrived")
	}
}

func TestRelayStampsSenderIdentity(t *testing.T) {
	url := startRelay(t)
	// A client cannot claim to be someone else; From is overwritten
	// relay-side, so whatever Dial identified as wins.
	mallory := dial(t, url, "mallory", 9)
	bob := dial(t, url, "bob", 2)

	received := make(chan *transport.Envelope, 1)
	bob.OnEnvelope = func(envelope *transport.Envelope) {
		received <- envelope
	}
	require.NoError(t, mallory.Send(context.Background(), "bob",
		&signaling.CallingMessage{Busy: &signaling.BusyMessage{}}))

	select {
	case envelope := <-received:
		require.Equal(t, signaling.UserID("mallory"), envelope.From)
	case <-time.After(5 * time.Second):
		t.Fatal("envelope never arrived")
	}
}

func TestSendToDisconnectedUserIsDropped(t *testing.T) {
	url := startRelay(t)
	alice := dial(t, url, "alice", 1)

	// Nobody named "ghost" is connected; the relay drops the message
	// and the sender is unaffected.
	require.NoError(t, alice.Send(context.Background(), "ghost",
		&signaling.CallingMessage{Busy: &signaling.BusyMessage{}}))
}
