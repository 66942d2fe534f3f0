package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBufferFull = errors.New("audit: record buffer full")
	ErrSinkClosed = errors.New("audit: sink closed")
)

// AsyncSink writes JSON lines to an io.Writer from a single worker goroutine.
type AsyncSink struct {
	records   chan Record
	writer    io.Writer
	wg        sync.WaitGroup
	logger    *slog.Logger
	closeOnce sync.Once
	closed    atomic.Bool
	mu        sync.RWMutex // guards send vs close

	blockOnFull bool

	// Drop accounting
	dropCount   uint64
	lastLogTime time.Time
	dropMu      sync.Mutex
}

func NewAsyncSink(w io.Writer, bufferSize int, blockOnFull bool, logger *slog.Logger) *AsyncSink {
	if w == nil {
		w = os.Stdout
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &AsyncSink{
		records:     make(chan Record, bufferSize),
		writer:      w,
		logger:      logger,
		blockOnFull: blockOnFull,
		lastLogTime: time.Now(),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

func (s *AsyncSink) Write(ctx context.Context, rec Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return ErrSinkClosed
	}

	if s.blockOnFull {
		select {
		case s.records <- rec:
			return nil
		case <-ctx.Done():
			s.handleDrop(rec.Operation.Method + "_ctx_cancelled")
			return ctx.Err()
		}
	}

	select {
	case s.records <- rec:
		return nil
	default:
		s.handleDrop(rec.Operation.Method)
		return ErrBufferFull
	}
}

func (s *AsyncSink) handleDrop(operation string) {
	currentDrops := atomic.AddUint64(&s.dropCount, 1)

	s.dropMu.Lock()
	defer s.dropMu.Unlock()

	if time.Since(s.lastLogTime) >= 5*time.Second {
		s.logger.Warn("Activity record buffer full, records rejected",
			"total_rejected", currentDrops,
			"sample_operation", operation,
		)
		atomic.StoreUint64(&s.dropCount, 0)
		s.lastLogTime = time.Now()
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	encoder := json.NewEncoder(s.writer)

	for rec := range s.records {
		if err := encoder.Encode(rec); err != nil {
			s.logger.Error("Failed to write activity record", "error", err, "record_id", rec.ID)
		}
	}
}

// Close stops accepting records and flushes the buffer.
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.records)
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}
