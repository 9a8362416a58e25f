package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs ingestion in the background, serializing documents that
// belong to the same chatbot so concurrent uploads cannot interleave writes
// to one vector index. Documents for different chatbots run in parallel.
type Dispatcher struct {
	pipeline *Pipeline
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher around the pipeline.
func NewDispatcher(pipeline *Pipeline, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) chatbotLock(chatbotID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[chatbotID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[chatbotID] = lock
	}
	return lock
}

// Dispatch schedules the document for ingestion and returns immediately.
func (d *Dispatcher) Dispatch(chatbotID, documentID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		lock := d.chatbotLock(chatbotID)
		lock.Lock()
		defer lock.Unlock()
		if err := d.pipeline.Process(context.Background(), documentID); err != nil {
			d.logger.Debug("ingestion finished with error",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all dispatched documents have finished processing.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
