package wal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/synrix/lattice/internal/logging"
	"github.com/synrix/lattice/pkg/storage"
)

// Default adaptive batch bounds (spec §4.E).
const (
	DefaultMinBatch = 1_000
	DefaultMaxBatch = 100_000
)

var verbose = logging.New("SYNRIX_WAL_VERBOSE")

// Engine is a durable append-only log with adaptive batching and a
// background flusher, matching spec §4.E.
type Engine struct {
	mu       sync.Mutex
	cond     *sync.Cond
	fsys     storage.FS
	path     string
	file     storage.File
	header   Header
	buffer   []Entry
	flushSeq uint64 // highest sequence durably flushed
	closed   bool

	batchMin, batchMax, batchSize int
	windowStart                   time.Time
	windowCount                   int

	flushNow chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

// Open opens or creates the WAL file at path and starts its background
// flusher.
func Open(fsys storage.FS, path string) (*Engine, error) {
	e := &Engine{
		fsys:      fsys,
		path:      path,
		batchMin:  DefaultMinBatch,
		batchMax:  DefaultMaxBatch,
		batchSize: DefaultMinBatch,
		flushNow:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	e.windowStart = time.Unix(0, 0)

	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	e.file = f

	if !exists {
		e.header = Header{Magic: Magic, Version: Version}
		if err := e.writeHeaderLocked(); err != nil {
			_ = f.Close()
			return nil, err
		}
	} else {
		buf := make([]byte, HeaderSize)
		if _, err := f.ReadAt(buf, 0); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("wal: read header: %w", err)
		}
		h := decodeHeader(buf)
		if h.Magic != Magic {
			_ = f.Close()
			return nil, ErrInvalidMagic
		}
		e.header = h
		e.flushSeq = h.CommitCount
	}

	e.wg.Add(1)
	go e.flusherLoop()

	return e, nil
}

func (e *Engine) writeHeaderLocked() error {
	buf := make([]byte, HeaderSize)
	encodeHeader(buf, e.header)
	if _, err := e.file.Seek(0, 0); err != nil {
		return fmt.Errorf("wal: seek header: %w", err)
	}
	if _, err := e.file.Write(buf); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	return nil
}

// Append buffers a new entry and assigns it the next sequence number. It
// does not block for durability; call FlushWait for that.
func (e *Engine) Append(op Op, nodeID uint64, payload []byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}

	e.header.Sequence++
	seq := e.header.Sequence
	e.buffer = append(e.buffer, Entry{Sequence: seq, Op: op, NodeID: nodeID, Payload: payload})
	e.trackRate()

	if len(e.buffer) >= e.batchSize {
		select {
		case e.flushNow <- struct{}{}:
		default:
		}
	}
	return seq, nil
}

// trackRate implements the once-per-second adaptive batch sizing rule:
// >10,000 ops/s grows batchSize by 20%, <1,000 ops/s shrinks it by 20%.
func (e *Engine) trackRate() {
	e.windowCount++
	elapsed := time.Since(e.windowStart)
	if elapsed < time.Second {
		return
	}
	rate := float64(e.windowCount) / elapsed.Seconds()
	switch {
	case rate > 10_000:
		e.batchSize = clampInt(int(float64(e.batchSize)*1.2), e.batchMin, e.batchMax)
	case rate < 1_000:
		e.batchSize = clampInt(int(float64(e.batchSize)*0.8), e.batchMin, e.batchMax)
	}
	e.windowStart = time.Now()
	e.windowCount = 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Flush requests an immediate background flush without waiting for it.
func (e *Engine) Flush() {
	select {
	case e.flushNow <- struct{}{}:
	default:
	}
}

// FlushWait blocks until the flush watermark reaches seq, or the engine is
// closed.
func (e *Engine) FlushWait(seq uint64) error {
	e.Flush()

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.flushSeq < seq && !e.closed {
		e.cond.Wait()
	}
	if e.closed && e.flushSeq < seq {
		return ErrClosed
	}
	return nil
}

func (e *Engine) flusherLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.flushNow:
			e.doFlush()
		case <-ticker.C:
			e.doFlush()
		case <-e.done:
			e.doFlush()
			return
		}
	}
}

// doFlush takes the pending buffer under the mutex and encodes it outside
// the lock, then holds the mutex again for the seek, write, fsync and
// header update.
func (e *Engine) doFlush() {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return
	}
	pending := make([]Entry, len(e.buffer))
	copy(pending, e.buffer)
	e.buffer = e.buffer[:0]
	offset := int64(HeaderSize + e.header.LastValidOffset)
	e.mu.Unlock()

	var block []byte
	for _, ent := range pending {
		block = append(block, encodeEntry(ent)...)
	}
	// Sentinel: zero out the next entry-header-sized region so a reader
	// never mistakes pre-allocated garbage for a valid record.
	block = append(block, make([]byte, entryHeaderSize)...)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.file.Seek(offset, 0); err != nil {
		verbose.Printf("wal: seek failed: %v", err)
		e.requeueLocked(pending)
		return
	}
	if _, err := e.file.Write(block); err != nil {
		verbose.Printf("wal: write failed: %v", err)
		e.requeueLocked(pending)
		return
	}
	if err := e.file.Sync(); err != nil {
		verbose.Printf("wal: fsync failed: %v", err)
		e.requeueLocked(pending)
		return
	}

	e.header.LastValidOffset += uint64(len(block) - entryHeaderSize)
	e.header.CommitCount = pending[len(pending)-1].Sequence
	e.flushSeq = e.header.CommitCount
	if err := e.writeHeaderLocked(); err != nil {
		verbose.Printf("wal: header flush failed: %v", err)
	}
	e.cond.Broadcast()
}

// requeueLocked restores entries that failed to become durable to the front
// of the buffer so the next flush attempt retries them, instead of silently
// dropping acknowledged-but-unflushed writes on a transient I/O error. Must
// be called with mu held.
func (e *Engine) requeueLocked(pending []Entry) {
	e.buffer = append(pending, e.buffer...)
}

// Checkpoint flushes all pending entries, waits for durability, invokes
// snapshot (expected to durably save the data file), then advances the
// checkpoint watermark and truncates the log.
func (e *Engine) Checkpoint(snapshot func() error) error {
	e.mu.Lock()
	seq := e.header.Sequence
	e.mu.Unlock()

	if err := e.FlushWait(seq); err != nil {
		return err
	}

	if snapshot != nil {
		if err := snapshot(); err != nil {
			return fmt.Errorf("wal: checkpoint snapshot: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.header.CheckpointSequence = seq
	e.header.LastValidOffset = 0
	if err := e.writeHeaderLocked(); err != nil {
		return err
	}
	if err := e.file.Truncate(int64(HeaderSize)); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	return nil
}

// Close stops the background flusher, flushes remaining entries, and
// releases the file handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	e.mu.Lock()
	e.cond.Broadcast()
	f := e.file
	e.mu.Unlock()

	if f == nil {
		return nil
	}
	return f.Close()
}

// Header returns a snapshot of the in-memory State Ledger.
func (e *Engine) Header() Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.header
}
