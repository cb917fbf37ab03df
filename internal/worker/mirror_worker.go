package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/mirror"
)

type mirrorTask struct {
	record *mirror.Record
	id     string
	fields mirror.Fields
}

// MirrorWorker drains queued audit writes into the workbook on a single
// goroutine. Enqueue never blocks; a full queue drops the task with a
// warning since the mirror is best-effort.
type MirrorWorker struct {
	workbook *mirror.Workbook
	queue    chan mirrorTask
	logger   *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewMirrorWorker creates a mirror worker with the given queue capacity
func NewMirrorWorker(workbook *mirror.Workbook, queueSize int, logger *zap.Logger) *MirrorWorker {
	return &MirrorWorker{
		workbook: workbook,
		queue:    make(chan mirrorTask, queueSize),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Name implements Worker
func (w *MirrorWorker) Name() string {
	return "mirror"
}

// Start launches the drain goroutine
func (w *MirrorWorker) Start(ctx context.Context) error {
	go w.drain(ctx)
	return nil
}

// Stop closes the queue and waits for the remaining tasks to flush
func (w *MirrorWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.queue)
	})
	<-w.done
}

// EnqueueAppend queues a full mirror row for a new submission
func (w *MirrorWorker) EnqueueAppend(rec mirror.Record) {
	w.enqueue(mirrorTask{record: &rec})
}

// EnqueueUpdate queues a targeted update for an existing mirror row
func (w *MirrorWorker) EnqueueUpdate(id string, fields mirror.Fields) {
	w.enqueue(mirrorTask{id: id, fields: fields})
}

func (w *MirrorWorker) enqueue(task mirrorTask) {
	select {
	case w.queue <- task:
	default:
		w.logger.Warn("Mirror queue full, dropping task", zap.String("id", task.id))
	}
}

func (w *MirrorWorker) drain(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case task, ok := <-w.queue:
			if !ok {
				return
			}
			w.process(task)
		case <-ctx.Done():
			// Flush whatever is already queued before exiting
			for {
				select {
				case task, ok := <-w.queue:
					if !ok {
						return
					}
					w.process(task)
				default:
					return
				}
			}
		}
	}
}

func (w *MirrorWorker) process(task mirrorTask) {
	var err error
	if task.record != nil {
		err = w.workbook.Append(*task.record)
	} else {
		err = w.workbook.UpdateFields(task.id, task.fields)
	}
	if err != nil {
		w.logger.Warn("Mirror write failed", zap.Error(err))
	}
}
