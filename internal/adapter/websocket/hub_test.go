package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/domain/event"
)

func startHub(t *testing.T, origins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(origins, zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversToOwnerRoom(t *testing.T) {
	hub, url := startHub(t, nil)
	alice := dial(t, url+"?userId=alice")
	bob := dial(t, url+"?userId=bob")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	d := &domain.Download{ID: "d-1", OwnerID: "alice", Name: "Sintel"}
	require.NoError(t, hub.Handle(event.NewDownloadProgress(d, domain.StatusDebriding, 25, 2048)))

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := alice.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Event string                `json:"event"`
		Data  event.ProgressPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, event.NameProgress, frame.Event)
	assert.Equal(t, event.ProgressPayload{
		DownloadID: "d-1",
		Progress:   25,
		Speed:      2048,
		Status:     domain.StatusDebriding,
	}, frame.Data)

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "other users receive nothing")
}

func TestHub_IgnoresInternalEvents(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url+"?userId=alice")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	d := &domain.Download{ID: "d-1", OwnerID: "alice"}
	require.NoError(t, hub.Handle(event.NewFileTransferred(d, "a.mkv", "/x/a.mkv", 10, false)))

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_RequiresUserID(t *testing.T) {
	_, url := startHub(t, nil)
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_CheckOrigin(t *testing.T) {
	_, url := startHub(t, []string{"https://app.example.com"})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := gws.DefaultDialer.Dial(url+"?userId=alice", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, _, err := gws.DefaultDialer.Dial(url+"?userId=alice", header)
	require.NoError(t, err)
	conn.Close()
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url+"?userId=alice")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.Broadcast(RoomFor("alice"), []byte("{}")))
}
