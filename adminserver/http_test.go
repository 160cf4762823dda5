package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHTTP(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewHandler(f.svc, HandlerConfig{ServiceName: "pzrcon-test", SinkWriteTimeout: time.Second}))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHandler_Health(t *testing.T) {
	ts := startHTTP(t, newFixture(t, nil))

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pzrcon-test", body["service"])
}

func TestHandler_ConnectionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ts := startHTTP(t, f)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/servers/1/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["connected"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/servers/1/disconnect", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = doJSON(t, http.MethodPost, ts.URL+"/servers/1/connect", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["server_id"])

	code, body = doJSON(t, http.MethodGet, ts.URL+"/servers/1/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, true, body["authenticated"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/servers/1/disconnect", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHandler_ConnectErrors(t *testing.T) {
	ts := startHTTP(t, newFixture(t, nil))

	code, body := doJSON(t, http.MethodPost, ts.URL+"/servers/42/connect", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["detail"], "unknown server")

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/servers/abc/connect", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t, nil)
	ts := startHTTP(t, f)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/servers/1/execute", map[string]string{"command": "players"})
	assert.Equal(t, http.StatusBadRequest, code, "not connected")

	require.NoError(t, f.svc.Connect(context.Background(), 1))

	code, body := doJSON(t, http.MethodPost, ts.URL+"/servers/1/execute", map[string]string{"command": "save"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ran save", body["response"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/servers/1/execute", map[string]string{"command": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	f.dialer.BreakAll()
	code, body = doJSON(t, http.MethodPost, ts.URL+"/servers/1/execute", map[string]string{"command": "save"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestHandler_Options(t *testing.T) {
	f := newFixture(t, nil)
	ts := startHTTP(t, f)
	require.NoError(t, f.svc.Connect(context.Background(), 1))

	code, body := doJSON(t, http.MethodGet, ts.URL+"/servers/1/options", nil)
	require.Equal(t, http.StatusOK, code)
	opts, ok := body["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "32", opts["MaxPlayers"])
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	var msg map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandler_WebSocket(t *testing.T) {
	f := newFixture(t, nil)
	ts := startHTTP(t, f)
	conn := dialWS(t, ts, "/ws/1")

	initial := readMessage(t, conn)
	assert.Equal(t, "connection_status", initial["type"])
	assert.Equal(t, false, initial["connected"])
	require.Eventually(t, func() bool { return f.bus.SubscriberCount(1) == 2 }, time.Second, 5*time.Millisecond)

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		assert.Equal(t, "pong", readMessage(t, conn)["type"])
	})

	t.Run("broadcast reaches the client", func(t *testing.T) {
		require.NoError(t, f.svc.Connect(context.Background(), 1))

		msg := readMessage(t, conn)
		assert.Equal(t, "connection_status", msg["type"])
		assert.Equal(t, true, msg["connected"])
		assert.Equal(t, float64(1), msg["server_id"])
	})

	t.Run("get status", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_status"}))
		msg := readMessage(t, conn)
		assert.Equal(t, "connection_status", msg["type"])
		assert.Equal(t, true, msg["connected"])
	})

	t.Run("check players", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "check_players"}))
		msg := readMessage(t, conn)
		assert.Equal(t, "players_count", msg["type"])
		assert.Equal(t, true, msg["connected"])
		assert.Equal(t, float64(2), msg["current"])
		assert.Equal(t, float64(32), msg["max"])
	})

	t.Run("unknown and malformed messages", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
		assert.Equal(t, "error", readMessage(t, conn)["type"])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		assert.Equal(t, "error", readMessage(t, conn)["type"])
	})

	t.Run("closing unsubscribes", func(t *testing.T) {
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool { return f.bus.SubscriberCount(1) == 1 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestHandler_WebSocketRejectsOversizedFrames(t *testing.T) {
	f := newFixture(t, nil)
	ts := startHTTP(t, f)
	conn := dialWS(t, ts, "/ws/1")

	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.bus.SubscriberCount(1) == 2 }, time.Second, 5*time.Millisecond)

	big := `{"type":"ping","pad":"` + strings.Repeat("x", maxClientMessage) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, websocket.IsUnexpectedCloseError(err, websocket.CloseMessageTooBig, websocket.CloseAbnormalClosure))
	require.Eventually(t, func() bool { return f.bus.SubscriberCount(1) == 1 }, 2*time.Second, 10*time.Millisecond)
}
