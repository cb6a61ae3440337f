package api

import (
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

	"github.com/coreman2200/funtimes-arcaluminis/internal/brightness"
	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scheduler"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage/sqlite"
)

func newTestServer(t *testing.T, brightnessAPI bool) (*Server, *brightness.Register, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := brightness.NewRegister()
	srv := NewServer(Options{
		Brightness:     reg,
		Hub:            NewHub(2, 3, "sim"),
		Store:          store,
		SchedulerStats: func() scheduler.Stats { return scheduler.Stats{Ticks: 7} },
		BrightnessAPI:  brightnessAPI,
	})
	return srv, reg, store
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestSetBrightness(t *testing.T) {
	srv, reg, store := newTestServer(t, true)

	rec, body := do(t, srv.Routes(), "POST", "/brightness", `{"brightness": 0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Brightness successfully updated to 0.5", body["message"])
	assert.Equal(t, 500, reg.Load())

	saved, err := store.LoadBrightness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.5, saved)
}

func TestSetBrightnessRejectsOutOfRange(t *testing.T) {
	srv, reg, store := newTestServer(t, true)
	require.NoError(t, reg.SetFraction(0.2))

	rec, body := do(t, srv.Routes(), "POST", "/brightness", `{"brightness": 1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Brightness must be in range [0, 1], but received 1.5", body["detail"])
	assert.Equal(t, 200, reg.Load(), "register must keep its value")

	_, err := store.LoadBrightness(context.Background())
	assert.True(t, storage.IsNotFound(err))
}

func TestSetBrightnessBadBodies(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	for name, body := range map[string]string{
		"not json":      `brightness=1`,
		"missing field": `{"level": 1}`,
		"wrong type":    `{"brightness": "high"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, out := do(t, srv.Routes(), "POST", "/brightness", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, out["detail"])
		})
	}
}

func TestSetBrightnessNotMountedForSchedule(t *testing.T) {
	srv, reg, _ := newTestServer(t, false)

	rec, _ := do(t, srv.Routes(), "POST", "/brightness", `{"brightness": 0.5}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, frame.Unset, reg.Load())
}

func TestGetBrightness(t *testing.T) {
	srv, reg, _ := newTestServer(t, false)
	require.NoError(t, reg.SetFraction(0.25))

	rec, body := do(t, srv.Routes(), "GET", "/brightness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 250, body["level"])
	assert.EqualValues(t, 0.25, body["fraction"])
	assert.Equal(t, "schedule", body["source"])
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, false)
	srv.opts.Hub.Observe(4, frame.NewImageWithColor(2, 3, frame.RGB{R: 255}))

	rec, body := do(t, srv.Routes(), "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["frame_id"])
	assert.EqualValues(t, 2, body["rows"])
	assert.EqualValues(t, 3, body["cols"])
	assert.Equal(t, "sim", body["driver"])
	assert.Contains(t, body, "host")

	sched, ok := body["scheduler"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, sched["ticks"])
}

func TestRenders(t *testing.T) {
	srv, _, store := newTestServer(t, false)
	ctx := context.Background()
	for _, name := range []string{"clock", "weather"} {
		require.NoError(t, store.RecordRender(ctx, &storage.Render{Applet: name, OK: true, RenderedAt: time.Now()}))
	}

	req := httptest.NewRequest("GET", "/renders?limit=1", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var renders []storage.Render
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renders))
	require.Len(t, renders, 1)
	assert.Equal(t, "weather", renders[0].Applet)

	rec, _ = do(t, srv.Routes(), "GET", "/renders?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	rec, _ := do(t, srv.Routes(), "OPTIONS", "/brightness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEstimateCurrent(t *testing.T) {
	assert.InDelta(t, 0.0, estimateCurrent(make([]byte, 6)), 1e-9)
	assert.InDelta(t, 0.120, estimateCurrent([]byte{255, 255, 255, 255, 255, 255}), 1e-9)
}

func TestObserveKeepsLatest(t *testing.T) {
	h := NewHub(1, 1, "sim")
	h.Observe(1, frame.NewImageWithColor(1, 1, frame.RGB{R: 1}))
	h.Observe(2, frame.NewImageWithColor(1, 1, frame.RGB{R: 2}))

	p := <-h.latest
	assert.Equal(t, uint64(2), p.seq)
	assert.Equal(t, []byte{2, 0, 0}, p.rgb)
	assert.Equal(t, uint64(2), h.FrameID())
}

func TestFramesWebsocket(t *testing.T) {
	srv, _, _ := newTestServer(t, false)
	hub := srv.opts.Hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var top map[string]any
	require.NoError(t, conn.ReadJSON(&top))
	assert.EqualValues(t, 2, top["rows"])
	assert.EqualValues(t, 3, top["cols"])

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	img := frame.NewImageWithColor(2, 3, frame.RGB{G: 9})
	hub.Observe(11, img)

	var msg struct {
		FrameID uint64 `json:"frame_id"`
		Rows    int    `json:"rows"`
		Cols    int    `json:"cols"`
		RGB     []byte `json:"rgb"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint64(11), msg.FrameID)
	assert.Equal(t, 2, msg.Rows)
	assert.Equal(t, img.Pix, msg.RGB)
	assert.InDelta(t, 6*9/255.0*0.020, hub.EstimatedAmps(), 1e-9)
}
