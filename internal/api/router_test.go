package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/model"
	"github.com/sweeney/asterisk-proxy/internal/pbx"
)

type fakeState struct{}

func (fakeState) Extensions(obf bool) map[string]model.Extension {
	x := model.Extension{ID: "201", Name: "Alice", Status: model.StatusOnline, Conversations: map[string]model.Conversation{
		"c1": {ID: "c1", CounterpartNum: "0612345678"},
	}}
	if obf {
		x = x.Obfuscated()
	}
	return map[string]model.Extension{"201": x}
}

func (s fakeState) Extension(id string, obf bool) (model.Extension, error) {
	x, ok := s.Extensions(obf)[id]
	if !ok {
		return x, pbx.ErrEndpointNotFound
	}
	return x, nil
}

func (fakeState) Trunks(bool) map[string]model.Trunk {
	return map[string]model.Trunk{"trunk1": {ID: "trunk1", Status: model.StatusOnline}}
}

func (fakeState) Queues(bool) map[string]model.Queue {
	return map[string]model.Queue{"401": {ID: "401", Name: "Support"}}
}

func (s fakeState) Queue(id string, obf bool) (model.Queue, error) {
	q, ok := s.Queues(obf)[id]
	if !ok {
		return q, pbx.ErrQueueNotFound
	}
	return q, nil
}

func (fakeState) Parkings(bool) map[string]model.Parking {
	return map[string]model.Parking{"71": {ID: "71"}}
}

type readyFlag bool

func (r readyFlag) Connected() bool { return bool(r) }

func newTestRouter(ready bool) (http.Handler, *events.Broadcaster) {
	hub := events.NewBroadcaster(8, nil)
	return NewRouter(fakeState{}, hub, readyFlag(ready), nil), hub
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestRouter(false)

	w := get(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	w = get(t, h, "/api/v1/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h, _ = newTestRouter(true)
	w = get(t, h, "/api/v1/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestExtensionsSnapshot(t *testing.T) {
	h, _ := newTestRouter(true)

	tests := []struct {
		name   string
		path   string
		number string
	}{
		{"clear", "/api/v1/extensions", "0612345678"},
		{"obfuscated", "/api/v1/extensions?obfuscate=true", "0612345xxx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.path)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var got map[string]model.Extension
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Contains(t, got, "201")
			assert.Equal(t, tt.number, got["201"].Conversations["c1"].CounterpartNum)
		})
	}
}

func TestSingleEntityLookups(t *testing.T) {
	h, _ := newTestRouter(true)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/extensions/201", http.StatusOK},
		{"/api/v1/extensions/999", http.StatusNotFound},
		{"/api/v1/queues/401", http.StatusOK},
		{"/api/v1/queues/999", http.StatusNotFound},
		{"/api/v1/trunks", http.StatusOK},
		{"/api/v1/parkings", http.StatusOK},
		{"/api/v1/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.status, get(t, h, tt.path).Code)
		})
	}
}

func TestMutatingMethodsAreRejected(t *testing.T) {
	h, _ := newTestRouter(true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extensions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEventStream(t *testing.T) {
	h, hub := newTestRouter(true)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Emit(events.ExtenChanged{Extension: model.Extension{ID: "201"}})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: extenChanged\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: {"), line)
	assert.Contains(t, line, `"exten":"201"`)
}
