// Package events publishes review progress to Redis pub/sub so other tools
// can follow a run as it happens.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "transcriber:review:progress"

// Event types
const (
	EventReviewStarted   = "review.started"
	EventSegmentAnalyzed = "review.segment_analyzed"
	EventModelPull       = "review.model_pull"
	EventReviewCompleted = "review.completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType, runID string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Source:    "transcriber",
		Version:   "1.0",
	}
}

// ReviewStartedEvent is published when a run begins.
type ReviewStartedEvent struct {
	BaseEvent

	Model      string `json:"model"`
	Transcript string `json:"transcript"`
	Segments   int    `json:"segments"`
}

// SegmentAnalyzedEvent is published after each segment.
type SegmentAnalyzedEvent struct {
	BaseEvent

	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	SourceID   string `json:"source_id"`
	Index      int    `json:"index"`
	IsRelevant bool   `json:"is_relevant"`
	Error      string `json:"error,omitempty"`

	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
}

// ModelPullEvent reports model download progress.
type ModelPullEvent struct {
	BaseEvent

	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// ReviewCompletedEvent is published when a run reaches a terminal state.
type ReviewCompletedEvent struct {
	BaseEvent

	Model        string `json:"model"`
	State        string `json:"state"`
	Total        int    `json:"total"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	NotAttempted int    `json:"not_attempted"`
	Relevant     int    `json:"relevant"`
	Evidence     int    `json:"evidence"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
}

// redisPublisher is the subset of *redis.Client used by Publisher.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes review events to Redis.
type Publisher struct {
	client  redisPublisher
	channel string
	logger  logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewPublisher creates a new event publisher.
func NewPublisher(client redisPublisher, channel string, logger logging.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, cfg.Channel, logger), nil
}

// Channel returns the channel events are published to.
func (p *Publisher) Channel() string {
	return p.channel
}

// PublishStarted publishes the start of a run.
func (p *Publisher) PublishStarted(ctx context.Context, run *analysis.Run, transcriptPath string) error {
	return p.publish(ctx, ReviewStartedEvent{
		BaseEvent:  NewBaseEvent(EventReviewStarted, run.ID),
		Model:      run.Model,
		Transcript: transcriptPath,
		Segments:   run.Total(),
	})
}

// PublishProgress converts a controller progress event and publishes it.
// Terminal events are ignored; use PublishCompleted with the finished run.
func (p *Publisher) PublishProgress(ctx context.Context, ev analysis.ProgressEvent) error {
	switch ev.Kind {
	case analysis.EventSegment:
		event := SegmentAnalyzedEvent{
			BaseEvent:                 NewBaseEvent(EventSegmentAnalyzed, ev.RunID),
			Completed:                 ev.Completed,
			Total:                     ev.Total,
			SourceID:                  ev.SourceID,
			Index:                     ev.Index,
			IsRelevant:                ev.IsRelevant,
			ElapsedSeconds:            ev.Snapshot.ElapsedSeconds,
			EstimatedRemainingSeconds: ev.Snapshot.EstimatedRemainingSeconds,
		}
		if ev.Err != nil {
			event.Error = ev.Err.Error()
		}
		return p.publish(ctx, event)
	case analysis.EventPull:
		if ev.Pull == nil {
			return nil
		}
		return p.publish(ctx, ModelPullEvent{
			BaseEvent: NewBaseEvent(EventModelPull, ev.RunID),
			Status:    ev.Pull.Status,
			Completed: ev.Pull.Completed,
			Total:     ev.Pull.Total,
		})
	}
	return nil
}

// PublishCompleted publishes the final counts of a finished run.
func (p *Publisher) PublishCompleted(ctx context.Context, run *analysis.Run) error {
	s := run.Summary()
	return p.publish(ctx, ReviewCompletedEvent{
		BaseEvent:       NewBaseEvent(EventReviewCompleted, run.ID),
		Model:           run.Model,
		State:           string(s.State),
		Total:           s.Total,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		NotAttempted:    s.NotAttempted,
		Relevant:        s.Relevant,
		Evidence:        s.Evidence,
		StartedAt:       run.StartedAt(),
		CompletedAt:     run.FinishedAt(),
		DurationSeconds: s.Elapsed.Seconds(),
		Error:           s.Error,
	})
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", p.channel))
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", p.channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
