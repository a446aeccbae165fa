package sink

import (
	"errors"
	"sync"
	"sync/atomic"

	"voice-recorder/internal/audio/ogg"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrWriterClosed = errors.New("page writer closed")

// QueuedWriter moves page writes off the caller's goroutine. Enqueueing never
// drops a page: when the queue is full the caller waits for the writer.
type QueuedWriter struct {
	next  PageWriter
	queue chan ogg.Page
	log   zerolog.Logger
	g     errgroup.Group

	err     atomic.Pointer[error]
	stalls  atomic.Int64
	closeMu sync.Mutex
	closed  bool
}

func NewQueuedWriter(next PageWriter, size int, log zerolog.Logger) *QueuedWriter {
	qw := &QueuedWriter{
		next:  next,
		queue: make(chan ogg.Page, size),
		log:   log,
	}
	qw.g.Go(qw.run)
	return qw
}

// run writes queued pages until the queue is closed. After the first failure
// it keeps draining so enqueuers never block, and returns that failure.
func (qw *QueuedWriter) run() error {
	var failed error
	for p := range qw.queue {
		if failed != nil {
			continue
		}
		if err := qw.next.WritePage(p); err != nil {
			failed = err
			qw.err.Store(&err)
			qw.log.Error().Err(err).Msg("page write failed, discarding the rest of the stream")
		}
	}
	return failed
}

// WritePage enqueues p. It returns the first write error seen by the writer.
// It must not be called concurrently with Close.
func (qw *QueuedWriter) WritePage(p ogg.Page) error {
	if e := qw.err.Load(); e != nil {
		return *e
	}
	if qw.closed {
		return ErrWriterClosed
	}
	select {
	case qw.queue <- p:
	default:
		if qw.stalls.Add(1) == 1 {
			qw.log.Warn().Int("queue", cap(qw.queue)).Msg("write queue full, capture is waiting on disk")
		}
		qw.queue <- p
	}
	return nil
}

// Stalls returns how many enqueues found the queue full.
func (qw *QueuedWriter) Stalls() int64 { return qw.stalls.Load() }

// Close writes out every queued page and closes the underlying writer.
func (qw *QueuedWriter) Close() error {
	qw.closeMu.Lock()
	defer qw.closeMu.Unlock()
	if qw.closed {
		return ErrWriterClosed
	}
	qw.closed = true
	close(qw.queue)
	werr := qw.g.Wait()
	return errors.Join(werr, qw.next.Close())
}
