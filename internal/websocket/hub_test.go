package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/device"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

type fakeTurns struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeTurns) Listen(ctx context.Context) (turn.ID, error) {
	return f.Ask(ctx, "")
}

func (f *fakeTurns) Ask(ctx context.Context, prompt string) (turn.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	return "turn-1", nil
}

func (f *fakeTurns) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeAudio struct {
	mu          sync.Mutex
	bytes       int
	ended       int
	lost        int
	transcripts []string
}

func (f *fakeAudio) Stream(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bytes += len(data)
	return nil
}

func (f *fakeAudio) EndOfSpeech() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func (f *fakeAudio) InputLost() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost++
	return nil
}

func (f *fakeAudio) lostCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lost
}

func (f *fakeAudio) SubmitTranscript(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
	return nil
}

func (f *fakeAudio) snapshot() (int, int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytes, f.ended, append([]string(nil), f.transcripts...)
}

type testServer struct {
	hub   *Hub
	state *device.State
	turns *fakeTurns
	audio *fakeAudio
	url   string
}

func setupTestServer(t *testing.T) *testServer {
	logger := zap.NewNop()
	ts := &testServer{
		state: device.NewState(logger),
		turns: &fakeTurns{},
		audio: &fakeAudio{},
	}
	ts.hub = NewHub(ts.audio, ts.audio, ts.state, logger)
	ts.hub.SetTurnStarter(ts.turns)

	ctx, cancel := context.WithCancel(context.Background())
	go ts.hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocketWithAuth(ts.hub, c, c.QueryParam("device"), logger)
	})
	server := httptest.NewServer(e)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	ts.url = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	return ts
}

func (ts *testServer) connect(t *testing.T, deviceID string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(ts.url+"?device="+deviceID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		for _, id := range ts.hub.ConnectedDevices() {
			if id == deviceID {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, message string) {
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(message)))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	return decoded
}

func TestHub_PingPong(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	sendJSON(t, conn, `{"type": "ping", "data": "are you there"}`)

	reply := readJSON(t, conn)
	assert.Equal(t, "pong", reply["type"])
	assert.Equal(t, "are you there", reply["data"])
}

func TestHub_InvalidMessage(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	sendJSON(t, conn, `{"type": "location_update", "lat": 100, "lng": 0}`)

	reply := readJSON(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "invalid_message", reply["error_code"])
}

func TestHub_ListenRequest(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	sendJSON(t, conn, `{"type": "listen_request", "prompt": "What can I do for you?"}`)
	assert.Eventually(t, func() bool {
		return len(ts.turns.Prompts()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "What can I do for you?", ts.turns.Prompts()[0])

	ts.turns.mu.Lock()
	ts.turns.err = domain.ErrBusy
	ts.turns.mu.Unlock()

	sendJSON(t, conn, `{"type": "listen_request"}`)
	reply := readJSON(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "busy", reply["error_code"])
}

func TestHub_AudioAndTranscript(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)))
	sendJSON(t, conn, `{"type": "listening_end"}`)
	sendJSON(t, conn, `{"type": "transcript", "text": "open camera"}`)

	assert.Eventually(t, func() bool {
		bytes, ended, transcripts := ts.audio.snapshot()
		return bytes == 6400 && ended == 1 && len(transcripts) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHub_DeviceReadings(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	sendJSON(t, conn, `{"type": "battery_status", "raw_level": 40, "scale": 50}`)
	sendJSON(t, conn, `{"type": "location_update", "lat": 37.17, "lng": -3.6}`)
	sendJSON(t, conn, `{"type": "installed_apps", "apps": [{"label": "Camera", "package": "com.camera"}]}`)

	assert.Eventually(t, func() bool {
		_, known := ts.state.LastKnownLocation()
		return known && len(ts.state.Apps()) == 1
	}, time.Second, 10*time.Millisecond)

	status, err := ts.state.BatteryStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, status.Percent())
}

func TestHub_PublishCommand(t *testing.T) {
	ts := setupTestServer(t)

	err := ts.hub.PublishCommand(entities.DeviceCommand{Action: entities.CommandWebSearch, Query: "cats"})
	assert.True(t, errors.Is(err, ErrNoDevice))

	conn := ts.connect(t, "dev-1")
	require.NoError(t, ts.hub.PublishCommand(entities.DeviceCommand{
		Action:  entities.CommandLaunchApp,
		Package: "com.camera",
	}))

	message := readJSON(t, conn)
	assert.Equal(t, "command", message["type"])
	command := message["command"].(map[string]interface{})
	assert.Equal(t, "launch_app", command["action"])
	assert.Equal(t, "com.camera", command["package"])
}

func TestHub_WriteAudio(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.hub.WriteAudio("RESPONSE", []byte{1, 2, 3}), "audio with no device is dropped")

	conn := ts.connect(t, "dev-1")
	require.NoError(t, ts.hub.WriteAudio("RESPONSE", []byte{4, 5, 6}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, []byte{4, 5, 6}, payload)
}

func TestHub_ReplacesConnection(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.connect(t, "dev-1")
	second := ts.connect(t, "dev-1")

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "previous connection is closed")

	assert.Len(t, ts.hub.ConnectedDevices(), 1)
	require.NoError(t, ts.hub.PublishCommand(entities.DeviceCommand{Action: entities.CommandOpenMap, URI: "geo:0,0?q=x"}))
	assert.Equal(t, "command", readJSON(t, second)["type"])
}

func TestHub_LastDisconnectEndsListening(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.connect(t, "dev-1")
	second := ts.connect(t, "dev-2")

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return len(ts.hub.ConnectedDevices()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ts.audio.lostCount(), "another device can still send audio")

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		return ts.audio.lostCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, ts.hub.ConnectedDevices())
}

func TestEventForwarder(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.connect(t, "dev-1")

	journal := turn.NewJournal(10, zap.NewNop())
	forwarder := NewEventForwarder(journal.EventChannel(), ts.hub, zap.NewNop())
	forwarder.Start()
	defer forwarder.Stop()

	id := journal.Start()

	message := readJSON(t, conn)
	assert.Equal(t, "turn_event", message["type"])
	event := message["event"].(map[string]interface{})
	assert.Equal(t, string(id), event["turn_id"])
	assert.Equal(t, turn.EventTurnStarted, event["type"])
}
