package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/output"
)

type preview struct {
	seq uint64
	rgb []byte
}

// Hub streams every frame put on the panel to websocket clients. Frames
// arrive on the scheduler goroutine through Observe and are sent from Run,
// so slow clients only ever cost the scheduler one copy.
type Hub struct {
	rows, cols int
	driver     string

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	latest  chan preview
	frameID atomic.Uint64
	amps    atomic.Uint64 // math.Float64bits of the estimate
}

func NewHub(rows, cols int, driver string) *Hub {
	return &Hub{
		rows:    rows,
		cols:    cols,
		driver:  driver,
		clients: map[*websocket.Conn]bool{},
		latest:  make(chan preview, 1),
	}
}

// Observe queues img for broadcast, replacing a frame not yet sent. It has
// the output.DoubleBuffer OnSwap signature.
func (h *Hub) Observe(seq uint64, img *frame.Image) {
	h.frameID.Store(seq)
	p := preview{seq: seq, rgb: append([]byte(nil), img.Pix...)}
	for {
		select {
		case h.latest <- p:
			return
		default:
		}
		select {
		case <-h.latest:
		default:
		}
	}
}

// FrameID is the sequence number of the last observed frame.
func (h *Hub) FrameID() uint64 { return h.frameID.Load() }

// EstimatedAmps is the supply current the last broadcast frame draws.
func (h *Hub) EstimatedAmps() float64 { return math.Float64frombits(h.amps.Load()) }

// Run broadcasts observed frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case p := <-h.latest:
			h.amps.Store(math.Float64bits(estimateCurrent(p.rgb)))
			h.broadcastFrame(p)
		}
	}
}

func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.sendTopology(conn)
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients is the number of connected preview clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendTopology(conn *websocket.Conn) {
	top := map[string]any{
		"rows":   h.rows,
		"cols":   h.cols,
		"driver": h.driver,
	}
	b, _ := json.Marshal(top)
	conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) broadcastFrame(p preview) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	type message struct {
		T       int64  `json:"t"`
		FrameID uint64 `json:"frame_id"`
		Rows    int    `json:"rows"`
		Cols    int    `json:"cols"`
		RGB     []byte `json:"rgb"`
	}
	b, _ := json.Marshal(message{T: time.Now().UnixNano(), FrameID: p.seq, Rows: h.rows, Cols: h.cols, RGB: p.rgb})
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}

// estimateCurrent returns the estimated supply current in amps.
func estimateCurrent(rgb []byte) float64 {
	return output.EstimateCurrent(rgb, output.DefaultChanMA) / 1000
}
