// Package api exposes one occupancy session over HTTP: live status and
// per-space state, derived metrics, frame ingest, exports and rendered
// reports. The session itself is single-threaded, so the server owns the
// mutex that serialises access to it.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/occupancy.report/internal/export"
	"github.com/banshee-data/occupancy.report/internal/lotdb"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/report"
	"github.com/banshee-data/occupancy.report/internal/telemetry"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	mu      sync.Mutex
	session *parking.Session

	store     *lotdb.Store         // optional persistence
	collector *telemetry.Collector // optional scrape endpoint
	title     string
}

// NewServer wraps a session. Store and collector may be nil; the
// corresponding endpoints then report that the feature is disabled.
func NewServer(session *parking.Session, store *lotdb.Store, collector *telemetry.Collector, title string) *Server {
	if title == "" {
		title = "Occupancy Report"
	}
	return &Server{
		session:   session,
		store:     store,
		collector: collector,
		title:     title,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/spaces", s.listSpaces)
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/detections", s.ingestDetections)
	mux.HandleFunc("/api/export", s.exportMetrics)
	mux.HandleFunc("/report", s.showReport)
	mux.HandleFunc("/report.png", s.showReportPNG)
	if s.collector != nil {
		mux.Handle("/metrics", s.collector.Handler())
	}
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	empty, occupied := s.session.Manager.Counts()
	status := map[string]interface{}{
		"session_id":     s.session.ID,
		"started_at":     s.session.StartedAt.UTC().Format(time.RFC3339),
		"frames":         s.session.FrameCount(),
		"empty":          empty,
		"occupied":       occupied,
		"total":          s.session.Manager.TotalSpaces,
		"occupancy_rate": s.session.Manager.OccupancyRate(),
	}
	s.mu.Unlock()

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

// spaceAPI is the external shape of one space's live state.
type spaceAPI struct {
	ID                int             `json:"id"`
	State             string          `json:"state"`
	Polygon           []parking.Point `json:"polygon"`
	MinOccupancyRatio float64         `json:"min_occupancy_ratio"`
	VehicleCount      int             `json:"vehicle_count"`
	DwellSeconds      float64         `json:"dwell_seconds"`
	LastChange        *string         `json:"last_change,omitempty"`
}

func (s *Server) listSpaces(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	spaces := make([]spaceAPI, 0, len(s.session.Manager.Spaces))
	for _, sp := range s.session.Manager.Spaces {
		api := spaceAPI{
			ID:                sp.ID,
			State:             sp.StateString(),
			Polygon:           sp.Polygon,
			MinOccupancyRatio: sp.MinOccupancyRatio,
			VehicleCount:      sp.VehicleCount,
			DwellSeconds:      sp.DwellSeconds,
		}
		if !sp.LastChangeTime.IsZero() {
			t := sp.LastChangeTime.UTC().Format(time.RFC3339)
			api.LastChange = &t
		}
		spaces = append(spaces, api)
	}
	s.mu.Unlock()

	if err := json.NewEncoder(w).Encode(spaces); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write spaces")
	}
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	spaceID := parking.AllSpaces
	if sid := r.URL.Query().Get("space_id"); sid != "" {
		parsed, err := strconv.Atoi(sid)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'space_id' parameter")
			return
		}
		spaceID = parsed
	}

	windowMinutes := 60
	if wm := r.URL.Query().Get("window_minutes"); wm != "" {
		parsed, err := strconv.Atoi(wm)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'window_minutes' parameter")
			return
		}
		windowMinutes = parsed
	}

	s.mu.Lock()
	metrics := map[string]interface{}{
		"turnover_rate":      s.session.Metrics.TurnoverRate(spaceID, windowMinutes),
		"avg_dwell_duration": s.session.Metrics.AvgDwellDuration(spaceID),
		"peak_hours":         s.session.Metrics.PeakHours(),
	}
	s.mu.Unlock()

	if err := json.NewEncoder(w).Encode(metrics); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write metrics")
	}
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	spaceID := parking.AllSpaces
	if sid := r.URL.Query().Get("space_id"); sid != "" {
		parsed, err := strconv.Atoi(sid)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'space_id' parameter")
			return
		}
		spaceID = parsed
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	s.mu.Lock()
	all := s.session.Metrics.Transitions()
	s.mu.Unlock()

	recs := []parking.TransitionRecord{}
	for _, rec := range all {
		if spaceID != parking.AllSpaces && rec.SpaceID != spaceID {
			continue
		}
		recs = append(recs, rec)
		if limit > 0 && len(recs) == limit {
			break
		}
	}

	if err := json.NewEncoder(w).Encode(recs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write transitions")
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "No database configured")
		return
	}

	sessions, err := s.store.ListSessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
	}
}

// ingestDetection is one detection in a frame ingest request. Centroid
// is optional; when omitted it derives from the bounding box centre.
type ingestDetection struct {
	BBox       parking.BBox   `json:"bbox"`
	Centroid   *parking.Point `json:"centroid"`
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
}

type ingestRequest struct {
	Timestamp  string            `json:"timestamp"`
	Detections []ingestDetection `json:"detections"`
}

type ingestResponse struct {
	Frame       int                       `json:"frame"`
	Transitions []parking.TransitionEvent `json:"transitions"`
	Empty       int                       `json:"empty"`
	Occupied    int                       `json:"occupied"`
}

func (s *Server) ingestDetections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	var timestamp time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'timestamp': expected RFC3339")
			return
		}
		timestamp = parsed
	}

	detections := make([]parking.Detection, 0, len(req.Detections))
	for _, d := range req.Detections {
		det := parking.DetectionFromBBox(d.BBox)
		if d.Centroid != nil {
			det.Centroid = *d.Centroid
		}
		det.Class = d.Class
		det.Confidence = d.Confidence
		detections = append(detections, det)
	}

	s.mu.Lock()
	events, err := s.session.ProcessFrame(detections, timestamp)
	frame := s.session.FrameCount()
	empty, occupied := s.session.Manager.Counts()
	s.mu.Unlock()

	if err != nil {
		// Sink failures are non-fatal: the frame was processed and the
		// response reports the updated state anyway.
		log.Printf("[API] sink errors on frame %d: %v", frame, err)
	}

	if events == nil {
		events = []parking.TransitionEvent{}
	}
	resp := ingestResponse{
		Frame:       frame,
		Transitions: events,
		Empty:       empty,
		Occupied:    occupied,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write ingest response")
	}
}

func (s *Server) exportMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	exp := s.session.Export()
	s.mu.Unlock()

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, exp); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write export")
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		var err error
		if r.URL.Query().Get("stream") == "snapshots" {
			w.Header().Set("Content-Disposition", `attachment; filename="snapshots.csv"`)
			err = export.WriteSnapshotsCSV(w, exp.Snapshots)
		} else {
			w.Header().Set("Content-Disposition", `attachment; filename="transitions.csv"`)
			err = export.WriteTransitionsCSV(w, exp.Transitions)
		}
		if err != nil {
			log.Printf("[API] csv export failed: %v", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="occupancy.xlsx"`)
		if err := export.WriteXLSX(w, exp); err != nil {
			log.Printf("[API] xlsx export failed: %v", err)
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'format': expected json, csv or xlsx")
	}
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	exp := s.session.Export()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, exp, s.title); err != nil {
		log.Printf("[API] report render failed: %v", err)
	}
}

func (s *Server) showReportPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	exp := s.session.Export()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	if err := report.WritePNG(w, exp); err != nil {
		log.Printf("[API] report png render failed: %v", err)
	}
}
