package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/pipeline"
	"github.com/sells-group/terrasight/internal/render"
	"github.com/sells-group/terrasight/internal/resilience"
	"github.com/sells-group/terrasight/internal/scheduler"
	"github.com/sells-group/terrasight/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	runID, err := s.sched.TriggerRun(force)
	switch {
	case errors.Is(err, resilience.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "a pipeline run is already in progress")
		return
	case errors.Is(err, scheduler.ErrRunNotDue):
		writeError(w, http.StatusConflict, "run not due yet, pass force=true to override")
		return
	case err != nil:
		zap.L().Error("server: trigger run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to trigger run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	scenes, err := s.store.ListScenes(r.Context(), store.SceneFilter{Limit: limit})
	if err != nil {
		zap.L().Error("server: list scenes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list scenes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	idx, ok := model.ParseIndexType(r.URL.Query().Get("index"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown index type")
		return
	}
	force := r.URL.Query().Get("force") == "true"

	result, err := s.recomputer.Recompute(r.Context(), productID, idx, force)
	switch {
	case errors.Is(err, pipeline.ErrSceneNotFound):
		writeError(w, http.StatusNotFound, "scene not found")
		return
	case errors.Is(err, pipeline.ErrResultExists):
		writeError(w, http.StatusConflict, "result exists, pass force=true to replace")
		return
	case err != nil:
		zap.L().Error("server: recompute",
			zap.String("product_id", productID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "recompute failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// seriesPoint is one time-series sample in API responses.
type seriesPoint struct {
	Date        string  `json:"date"`
	Mean        float64 `json:"mean"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

func (s *Server) handleRegionSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	idx, ok := model.ParseIndexType(r.URL.Query().Get("index"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown index type")
		return
	}
	limit := queryInt(r, "limit", 90)

	region, err := s.store.GetRegion(r.Context(), name)
	if err != nil {
		zap.L().Error("server: get region", zap.String("region", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load region")
		return
	}
	if region == nil {
		writeError(w, http.StatusNotFound, "unknown region")
		return
	}

	stats, err := s.store.RegionSeries(r.Context(), name, idx, limit)
	if err != nil {
		zap.L().Error("server: region series", zap.String("region", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load series")
		return
	}

	points := make([]seriesPoint, len(stats))
	for i, st := range stats {
		points[i] = seriesPoint{
			Date:        st.Date,
			Mean:        st.Mean,
			Min:         st.Min,
			Max:         st.Max,
			StdDev:      st.StdDev,
			SampleCount: st.SampleCount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"region": name,
		"index":  string(idx),
		"points": points,
	})
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	idx, ok := model.ParseIndexType(chi.URLParam(r, "index"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown index type")
		return
	}

	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "tile coordinates must be integers")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(model.DateLayout)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	data, cached, err := s.renderer.RenderTile(r.Context(), idx, date, z, x, y)
	switch {
	case errors.Is(err, render.ErrTileOutOfRange):
		writeError(w, http.StatusNotFound, "tile out of range")
		return
	case err != nil:
		zap.L().Error("server: render tile",
			zap.String("index", string(idx)),
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "tile render failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		zap.L().Warn("server: write tile", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
