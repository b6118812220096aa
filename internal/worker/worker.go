package worker

import (
	"context"
	"log"
	"time"

	"github.com/bobarin/ugcstudio/internal/pipeline"
	"github.com/bobarin/ugcstudio/internal/queue"
)

// Worker consumes queued jobs and runs the network half of each pipeline
// operation. Epoch staleness is handled inside the pipeline: a job for a
// reset batch completes without touching anything.
type Worker struct {
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
}

func New(q *queue.Queue, p *pipeline.Pipeline) *Worker {
	return &Worker{queue: q, pipeline: p}
}

// Start processes jobs from every queue until the context is cancelled.
// Each queue gets one consumer goroutine per concurrency slot.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateBatch, w.handleGenerateBatch)
		go w.processQueue(ctx, queue.QueueRegenerateImage, w.handleRegenerateImage)
		go w.processQueue(ctx, queue.QueueGenerateVideo, w.handleGenerateVideo)
		go w.processQueue(ctx, queue.QueueGenerateVoice, w.handleGenerateVoice)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
				continue
			}
			if job == nil {
				continue
			}

			log.Printf("[Worker] Processing job %s (type=%s, tool=%s, epoch=%d, scene=%d)",
				job.ID, job.Type, job.Tool, job.Epoch, job.SceneID)
			handler(ctx, job)
		}
	}
}

func (w *Worker) handleGenerateBatch(ctx context.Context, job *queue.Job) {
	w.pipeline.RunBatch(ctx, job.Tool, job.Epoch)
}

func (w *Worker) handleRegenerateImage(ctx context.Context, job *queue.Job) {
	w.pipeline.RunImageRegen(ctx, job.Tool, job.Epoch, job.SceneID)
}

func (w *Worker) handleGenerateVideo(ctx context.Context, job *queue.Job) {
	w.pipeline.RunVideo(ctx, job.Tool, job.Epoch, job.SceneID)
}

func (w *Worker) handleGenerateVoice(ctx context.Context, job *queue.Job) {
	w.pipeline.RunVoiceOver(ctx, job.Tool, job.Epoch)
}
