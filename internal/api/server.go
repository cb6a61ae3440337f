// Package api is the daemon's HTTP surface: brightness control, health and a
// live websocket preview of the panel.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/coreman2200/funtimes-arcaluminis/internal/brightness"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scene"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scheduler"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage"
)

// Options wires a Server. Brightness and Hub are required.
type Options struct {
	Brightness *brightness.Register
	Hub        *Hub
	// Store persists API brightness and serves render history; optional.
	Store          storage.Store
	SchedulerStats func() scheduler.Stats
	SceneStats     func() scene.Stats
	// BrightnessAPI mounts POST /brightness. Without it brightness follows
	// the schedule and is read-only.
	BrightnessAPI bool
}

type Server struct {
	opts  Options
	start time.Time
}

func NewServer(opts Options) *Server {
	return &Server{opts: opts, start: time.Now()}
}

// Routes returns the full handler, CORS included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	if s.opts.BrightnessAPI {
		mux.HandleFunc("POST /brightness", s.handleSetBrightness)
	}
	mux.HandleFunc("GET /brightness", s.handleGetBrightness)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /renders", s.handleRenders)
	mux.HandleFunc("GET /ws", s.opts.Hub.HandleFramesWS)
	return withCORS(mux)
}

type brightnessRequest struct {
	Brightness *float64 `json:"brightness"`
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	var req brightnessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Brightness == nil {
		writeDetail(w, http.StatusBadRequest, "field 'brightness' is required")
		return
	}
	v := *req.Brightness
	if err := s.opts.Brightness.SetFraction(v); err != nil {
		if errors.Is(err, brightness.ErrOutOfRange) {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Brightness must be in range [0, 1], but received %v", v))
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info().Float64("brightness", v).Msg("brightness set over http")
	if s.opts.Store != nil {
		if err := s.opts.Store.SaveBrightness(r.Context(), v); err != nil {
			log.Warn().Err(err).Msg("failed to persist brightness")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Brightness successfully updated to %v", v),
	})
}

func (s *Server) handleGetBrightness(w http.ResponseWriter, r *http.Request) {
	source := "schedule"
	if s.opts.BrightnessAPI {
		source = "api"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"level":    s.opts.Brightness.Load(),
		"fraction": s.opts.Brightness.Fraction(),
		"source":   source,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"frame_id":        s.opts.Hub.FrameID(),
		"uptime_s":        time.Since(s.start).Seconds(),
		"rows":            s.opts.Hub.rows,
		"cols":            s.opts.Hub.cols,
		"driver":          s.opts.Hub.driver,
		"brightness":      s.opts.Brightness.Load(),
		"preview_clients": s.opts.Hub.Clients(),
		"estimated_amps":  s.opts.Hub.EstimatedAmps(),
		"host":            hostStats(),
	}
	if s.opts.SchedulerStats != nil {
		resp["scheduler"] = s.opts.SchedulerStats()
	}
	if s.opts.SceneStats != nil {
		resp["scenes"] = s.opts.SceneStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func hostStats() map[string]any {
	out := map[string]any{}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		out["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["mem_used_percent"] = vm.UsedPercent
		out["mem_available"] = vm.Available
	}
	if avg, err := load.Avg(); err == nil {
		out["load1"] = avg.Load1
	}
	return out
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeJSON(w, http.StatusOK, []*storage.Render{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	renders, err := s.opts.Store.RecentRenders(r.Context(), limit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if renders == nil {
		renders = []*storage.Render{}
	}
	writeJSON(w, http.StatusOK, renders)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
