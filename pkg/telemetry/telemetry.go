package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"chatsync/pkg/logger"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Steps    []Step            `json:"steps"`
	TotalMS  float64           `json:"total_ms"`
	Err      string            `json:"error,omitempty"`
	lastMark time.Time
	tel      *Telemetry
}

type Options struct {
	// SampleRate is the fraction of traces written to disk. Slow traces are
	// always logged regardless.
	SampleRate    float64
	SlowThreshold time.Duration
	BufferSize    int
	QueueCapacity int
	FlushInterval time.Duration
	MaxFileSize   int64
}

// Telemetry writes finished traces as JSON lines, one file per operation
// name, from a single background writer.
type Telemetry struct {
	dir     string
	opts    Options
	mu      sync.Mutex
	files   map[string]*os.File
	buffers map[string]*bufio.Writer
	traces  chan *Trace
	stopCh  chan struct{}
	stopped atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Int64
	sample  func() float64
}

var global atomic.Pointer[Telemetry]

// Init installs the process-wide telemetry instance.
func Init(dir string, opts Options) error {
	t, err := New(dir, opts)
	if err != nil {
		return err
	}
	if prev := global.Swap(t); prev != nil {
		prev.Close()
	}
	return nil
}

// Track starts a trace on the global instance. Before Init it returns a
// trace whose methods do nothing.
func Track(name string) *Trace {
	return global.Load().Track(name)
}

func Close() {
	if t := global.Swap(nil); t != nil {
		t.Close()
	}
}

func New(dir string, opts Options) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 << 10
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 1024
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 16 << 20
	}
	t := &Telemetry{
		dir:     dir,
		opts:    opts,
		files:   make(map[string]*os.File),
		buffers: make(map[string]*bufio.Writer),
		traces:  make(chan *Trace, opts.QueueCapacity),
		stopCh:  make(chan struct{}),
		sample:  rand.Float64,
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

func (t *Telemetry) Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tel: t}
}

// Dropped reports traces discarded because the queue was full.
func (t *Telemetry) Dropped() int64 { return t.dropped.Load() }

// Attr attaches a key/value to the trace.
func (tr *Trace) Attr(k, v string) *Trace {
	if tr == nil || tr.tel == nil {
		return tr
	}
	if tr.Attrs == nil {
		tr.Attrs = make(map[string]string)
	}
	tr.Attrs[k] = v
	return tr
}

// Mark records the time elapsed since the previous mark.
func (tr *Trace) Mark(label string) {
	if tr == nil || tr.tel == nil {
		return
	}
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Fail records err on the trace; nil is ignored.
func (tr *Trace) Fail(err error) {
	if tr == nil || tr.tel == nil || err == nil {
		return
	}
	tr.Err = err.Error()
}

// Finish closes the trace. It is safe to call more than once.
func (tr *Trace) Finish() {
	if tr == nil || tr.tel == nil {
		return
	}
	t := tr.tel
	tr.tel = nil
	total := time.Since(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	slow := t.opts.SlowThreshold > 0 && total >= t.opts.SlowThreshold
	if slow {
		logger.Warn("slow_operation", "op", tr.Name, "total_ms", fmt.Sprintf("%.2f", tr.TotalMS), "error", tr.Err)
	}
	if !slow && t.sample() >= t.opts.SampleRate {
		return
	}
	if t.stopped.Load() {
		return
	}
	select {
	case t.traces <- tr:
	default:
		t.dropped.Add(1)
	}
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)
		case <-ticker.C:
			t.flush()
		case <-t.stopCh:
			for {
				select {
				case tr := <-t.traces:
					t.write(tr)
					continue
				default:
				}
				break
			}
			t.mu.Lock()
			for _, b := range t.buffers {
				b.Flush()
			}
			for _, f := range t.files {
				f.Sync()
				f.Close()
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	if tr == nil {
		return
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bufferFor(tr.Name)
	if b == nil {
		return
	}
	b.Write(data)
	b.WriteByte('\n')
}

// flush writes buffers out and truncates files grown past MaxFileSize.
func (t *Telemetry) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.buffers {
		b.Flush()
		f := t.files[name]
		fi, err := f.Stat()
		if err != nil || fi.Size() <= t.opts.MaxFileSize {
			continue
		}
		f.Close()
		newF, err := os.OpenFile(f.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			delete(t.files, name)
			delete(t.buffers, name)
			continue
		}
		t.files[name] = newF
		t.buffers[name] = bufio.NewWriterSize(newF, t.opts.BufferSize)
		logger.Info("telemetry_truncated", "op", name, "max_bytes", t.opts.MaxFileSize)
	}
}

func (t *Telemetry) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	path := filepath.Join(t.dir, fmt.Sprintf("%s.jsonl", op))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("telemetry_open_failed", "path", path, "error", err)
		return nil
	}
	b := bufio.NewWriterSize(f, t.opts.BufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

// Close stops the writer after draining queued traces.
func (t *Telemetry) Close() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stopCh)
		t.wg.Wait()
	})
}
