package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// LogEntry represents a log entry to be written to a sink.
type LogEntry struct {
	RunID     string            `json:"run_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Service   string            `json:"service"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Caller    string            `json:"caller,omitempty"`
}

// LogWriter is an interface for writing log entries to persistent storage.
// Implementations should handle batching and error recovery.
type LogWriter interface {
	WriteBatch(ctx context.Context, entries []LogEntry) error
}

// Sink is an interface for components that receive log entries.
type Sink interface {
	// Write queues a log entry for async processing.
	Write(entry LogEntry)
	// Flush blocks until all queued entries are written.
	Flush(ctx context.Context) error
	// Close shuts down the sink gracefully.
	Close() error
}

// AsyncSink is an asynchronous log sink with buffered, batched writes.
type AsyncSink struct {
	writer       LogWriter
	entryChan    chan LogEntry
	flushChan    chan chan error
	flushTicker  *time.Ticker
	batchSize    int
	flushTimeout time.Duration
	wg           sync.WaitGroup
	done         chan struct{}
	mu           sync.Mutex
	closed       bool
}

// AsyncSinkConfig configures an AsyncSink.
type AsyncSinkConfig struct {
	// Writer is the backend for persisting log entries.
	Writer LogWriter
	// BufferSize is the channel capacity (default: 1000).
	BufferSize int
	// BatchSize is the max entries per batch write (default: 100).
	BatchSize int
	// FlushInterval is how often to flush buffered entries (default: 2s).
	FlushInterval time.Duration
}

// NewAsyncSink creates a new asynchronous log sink.
func NewAsyncSink(cfg AsyncSinkConfig) *AsyncSink {
	if cfg.Writer == nil {
		panic("AsyncSink requires a non-nil Writer")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	sink := &AsyncSink{
		writer:       cfg.Writer,
		entryChan:    make(chan LogEntry, cfg.BufferSize),
		flushChan:    make(chan chan error),
		flushTicker:  time.NewTicker(cfg.FlushInterval),
		batchSize:    cfg.BatchSize,
		flushTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}

	sink.wg.Add(1)
	go sink.run()

	return sink
}

// Write queues a log entry for async processing.
// If the buffer is full, the entry is dropped and a warning is written to stderr.
func (s *AsyncSink) Write(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.entryChan <- entry:
	default:
		fmt.Fprintf(os.Stderr, "[AsyncSink] Buffer full, dropping log entry: %s\n", entry.Message)
	}
}

// Flush blocks until all queued entries are written.
func (s *AsyncSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	select {
	case s.flushChan <- errChan:
		select {
		case err := <-errChan:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.flushTimeout):
			return fmt.Errorf("flush timeout after %v", s.flushTimeout)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued entries and shuts down the sink.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.flushTicker.Stop()
	s.wg.Wait()

	if c, ok := s.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// run is the background goroutine that batches and writes log entries.
func (s *AsyncSink) run() {
	defer s.wg.Done()

	batch := make([]LogEntry, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()

		err := s.writer.WriteBatch(ctx, batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[AsyncSink] Failed to write batch of %d entries: %v\n", len(batch), err)
		}

		batch = batch[:0]
		return err
	}

	drain := func() {
		for {
			select {
			case entry := <-s.entryChan:
				batch = append(batch, entry)
				if len(batch) >= s.batchSize {
					flush()
				}
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-s.flushTicker.C:
			flush()

		case errChan := <-s.flushChan:
			// Entries queued before the flush request must be included.
			drain()
			errChan <- nil

		case <-s.done:
			drain()
			return
		}
	}
}

// FileWriter is a LogWriter that appends entries as JSON lines to a file.
// It backs the per-run log kept next to the review artifacts.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewFileWriter opens (or creates) path for appending JSON lines.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &FileWriter{file: f, buf: bufio.NewWriter(f), path: path}, nil
}

// Path returns the file the writer appends to.
func (w *FileWriter) Path() string {
	return w.path
}

// WriteBatch encodes entries as JSON lines and flushes them to disk.
func (w *FileWriter) WriteBatch(ctx context.Context, entries []LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	enc := json.NewEncoder(w.buf)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding log entry: %w", err)
		}
	}
	return w.buf.Flush()
}

// Close flushes and closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// getCaller returns the caller information (file:line) for logging.
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	file = filepath.Base(file)
	return fmt.Sprintf("%s:%d", file, line)
}
