// Package mqttpub publishes session output over MQTT so external
// dashboards and signage can react to lot state in real time. It
// implements parking.EventSink: transitions go out as discrete events,
// snapshots as a retained status topic.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Config holds broker connection settings.
type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string // defaults to "parking"
	Username    string
	Password    string
}

// Publisher is an MQTT-backed event sink.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "parking"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{client: client, topicPrefix: cfg.TopicPrefix}, nil
}

// transitionMessage is the wire shape of one transition event.
type transitionMessage struct {
	SessionID    string  `json:"session_id"`
	SpaceID      int     `json:"space_id"`
	OldState     string  `json:"old_state"`
	NewState     string  `json:"new_state"`
	Timestamp    string  `json:"timestamp"`
	DwellSeconds float64 `json:"dwell_seconds"`
}

// statusMessage is the wire shape of the retained lot status.
type statusMessage struct {
	SessionID     string  `json:"session_id"`
	Timestamp     string  `json:"timestamp"`
	Empty         int     `json:"empty"`
	Occupied      int     `json:"occupied"`
	Total         int     `json:"total"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

// SaveTransition implements parking.EventSink. Each transition is
// published non-retained on a per-space topic.
func (p *Publisher) SaveTransition(sessionID string, rec parking.TransitionRecord) error {
	payload, err := json.Marshal(transitionMessage{
		SessionID:    sessionID,
		SpaceID:      rec.SpaceID,
		OldState:     string(rec.OldState),
		NewState:     string(rec.NewState),
		Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339),
		DwellSeconds: rec.DwellSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transition message: %w", err)
	}
	return p.publish(transitionTopic(p.topicPrefix, rec.SpaceID), false, payload)
}

// SaveSnapshot implements parking.EventSink. The status topic is
// retained so late subscribers see the current lot state immediately.
func (p *Publisher) SaveSnapshot(sessionID string, snap parking.Snapshot) error {
	payload, err := json.Marshal(statusMessage{
		SessionID:     sessionID,
		Timestamp:     snap.Timestamp.UTC().Format(time.RFC3339),
		Empty:         snap.EmptyCount,
		Occupied:      snap.OccupiedCount,
		Total:         snap.TotalCount,
		OccupancyRate: snap.OccupancyRate,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status message: %w", err)
	}
	return p.publish(statusTopic(p.topicPrefix), true, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight publishes a
// short grace period.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func transitionTopic(prefix string, spaceID int) string {
	return fmt.Sprintf("%s/space/%d/transition", prefix, spaceID)
}

func statusTopic(prefix string) string {
	return prefix + "/status"
}
