package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/ugcstudio/internal/models"
)

// ---------------------------------------------------------------------------
// Job queue
// Redis-backed handoff between the request path and the worker. Handlers
// enqueue after the synchronous Prepare step succeeded; the worker consumes
// and runs the network half. Jobs carry the epoch captured at prepare time
// so the worker can discard work for a batch that was reset in between.
// ---------------------------------------------------------------------------

const (
	QueueGenerateBatch   = "queue:generate_batch"
	QueueRegenerateImage = "queue:regenerate_image"
	QueueGenerateVideo   = "queue:generate_video"
	QueueGenerateVoice   = "queue:generate_voice"
)

// JobType tags what the worker should run.
type JobType string

const (
	JobGenerateBatch   JobType = "generate_batch"
	JobRegenerateImage JobType = "regenerate_image"
	JobGenerateVideo   JobType = "generate_video"
	JobGenerateVoice   JobType = "generate_voice"
)

// Job is one unit of queued work.
type Job struct {
	ID        uuid.UUID   `json:"id"`
	Type      JobType     `json:"type"`
	Tool      models.Tool `json:"tool"`
	Epoch     int64       `json:"epoch"`
	SceneID   int         `json:"scene_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type Queue struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a job onto a named queue.
func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks for up to timeout waiting for a job. Returns nil without
// error when none arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Length reports a queue's backlog.
func (q *Queue) Length(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateBatch queues the plan plus image fan-out for a prepared
// batch.
func (q *Queue) EnqueueGenerateBatch(ctx context.Context, tool models.Tool, epoch int64) error {
	return q.Enqueue(ctx, QueueGenerateBatch, &Job{
		ID:    uuid.New(),
		Type:  JobGenerateBatch,
		Tool:  tool,
		Epoch: epoch,
	})
}

// EnqueueRegenerateImage queues a single-scene image regeneration.
func (q *Queue) EnqueueRegenerateImage(ctx context.Context, tool models.Tool, epoch int64, sceneID int) error {
	return q.Enqueue(ctx, QueueRegenerateImage, &Job{
		ID:      uuid.New(),
		Type:    JobRegenerateImage,
		Tool:    tool,
		Epoch:   epoch,
		SceneID: sceneID,
	})
}

// EnqueueGenerateVideo queues a scene video generation.
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, tool models.Tool, epoch int64, sceneID int) error {
	return q.Enqueue(ctx, QueueGenerateVideo, &Job{
		ID:      uuid.New(),
		Type:    JobGenerateVideo,
		Tool:    tool,
		Epoch:   epoch,
		SceneID: sceneID,
	})
}

// EnqueueGenerateVoice queues the batch voice-over synthesis.
func (q *Queue) EnqueueGenerateVoice(ctx context.Context, tool models.Tool, epoch int64) error {
	return q.Enqueue(ctx, QueueGenerateVoice, &Job{
		ID:    uuid.New(),
		Type:  JobGenerateVoice,
		Tool:  tool,
		Epoch: epoch,
	})
}
