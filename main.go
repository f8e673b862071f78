package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/occupancy.report/internal/api"
	"github.com/banshee-data/occupancy.report/internal/export"
	"github.com/banshee-data/occupancy.report/internal/lotdb"
	"github.com/banshee-data/occupancy.report/internal/mqttpub"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/report"
	"github.com/banshee-data/occupancy.report/internal/telemetry"
)

var (
	configPath    = flag.String("config", "spaces.json", "Parking space definitions (JSON)")
	dbFile        = flag.String("db", "occupancy.db", "SQLite database path (empty to disable persistence)")
	migrationsDir = flag.String("migrations", "migrations", "Database migrations directory")
	listen        = flag.String("listen", ":8080", "Listen address")
	replayPath    = flag.String("replay", "", "Replay a JSONL detection log instead of serving")
	exportDir     = flag.String("export-dir", "", "Write report artefacts here on exit")
	title         = flag.String("title", "Occupancy Report", "Report title")

	mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL (empty to disable publishing)")
	mqttTopic  = flag.String("mqtt-topic", "parking", "MQTT topic prefix")
	mqttClient = flag.String("mqtt-client-id", "occupancy-report", "MQTT client id")
)

// frameRecord is one line of a replay log: a timestamped detection set.
type frameRecord struct {
	Timestamp  string           `json:"timestamp"`
	Detections []frameDetection `json:"detections"`
}

type frameDetection struct {
	BBox       parking.BBox   `json:"bbox"`
	Centroid   *parking.Point `json:"centroid"`
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
}

func main() {
	flag.Parse()

	spaces, err := parking.LoadSpaces(*configPath)
	if err != nil {
		log.Fatalf("failed to load space config: %v", err)
	}

	session := parking.NewSession(spaces, nil)
	log.Printf("session %s: %d spaces from %s", session.ID, session.Manager.TotalSpaces, *configPath)

	var store *lotdb.Store
	if *dbFile != "" {
		db, err := lotdb.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		store = lotdb.NewStore(db)
		if err := store.CreateSession(session.ID, session.StartedAt, *configPath, session.Manager.TotalSpaces); err != nil {
			log.Fatalf("failed to register session: %v", err)
		}
		session.AddSink(store)
	}

	collector := telemetry.NewCollector()
	session.AddSink(collector)

	if *mqttBroker != "" {
		pub, err := mqttpub.Connect(mqttpub.Config{
			Broker:      *mqttBroker,
			ClientID:    *mqttClient,
			TopicPrefix: *mqttTopic,
		})
		if err != nil {
			log.Fatalf("failed to connect MQTT publisher: %v", err)
		}
		defer pub.Close()
		session.AddSink(pub)
	}

	if *replayPath != "" {
		if err := runReplay(session, *replayPath); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		if err := writeArtefacts(session); err != nil {
			log.Fatalf("failed to write artefacts: %v", err)
		}
		return
	}

	serve(session, store, collector)

	if err := writeArtefacts(session); err != nil {
		log.Printf("failed to write artefacts: %v", err)
	}
}

// runReplay feeds a JSONL detection log through the session, one frame
// per line, honouring the recorded timestamps.
func runReplay(session *parking.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open replay log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame frameRecord
		if err := json.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("line %d: failed to parse frame: %w", lineNo, err)
		}

		var timestamp time.Time
		if frame.Timestamp != "" {
			timestamp, err = time.Parse(time.RFC3339, frame.Timestamp)
			if err != nil {
				return fmt.Errorf("line %d: failed to parse timestamp: %w", lineNo, err)
			}
		}

		detections := make([]parking.Detection, 0, len(frame.Detections))
		for _, d := range frame.Detections {
			det := parking.DetectionFromBBox(d.BBox)
			if d.Centroid != nil {
				det.Centroid = *d.Centroid
			}
			det.Class = d.Class
			det.Confidence = d.Confidence
			detections = append(detections, det)
		}

		if _, err := session.ProcessFrame(detections, timestamp); err != nil {
			log.Printf("line %d: sink errors: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read replay log: %w", err)
	}

	log.Printf("replayed %d frames, %d transitions logged",
		session.FrameCount(), len(session.Metrics.Transitions()))
	return nil
}

// serve runs the HTTP API until SIGINT or SIGTERM.
func serve(session *parking.Session, store *lotdb.Store, collector *telemetry.Collector) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(session, store, collector, *title).ServeMux()
	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}

// writeArtefacts renders the end-of-session exports into -export-dir.
func writeArtefacts(session *parking.Session) error {
	if *exportDir == "" {
		return nil
	}
	if err := os.MkdirAll(*exportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	exp := session.Export()
	writers := []struct {
		name  string
		write func(f *os.File) error
	}{
		{"occupancy.json", func(f *os.File) error { return export.WriteJSON(f, exp) }},
		{"transitions.csv", func(f *os.File) error { return export.WriteTransitionsCSV(f, exp.Transitions) }},
		{"snapshots.csv", func(f *os.File) error { return export.WriteSnapshotsCSV(f, exp.Snapshots) }},
		{"occupancy.xlsx", func(f *os.File) error { return export.WriteXLSX(f, exp) }},
		{"report.html", func(f *os.File) error { return report.WriteHTML(f, exp, *title) }},
		{"report.png", func(f *os.File) error { return report.WritePNG(f, exp) }},
	}

	for _, w := range writers {
		path := filepath.Join(*exportDir, w.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := w.write(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", path, err)
		}
		log.Printf("wrote %s", path)
	}
	return nil
}
