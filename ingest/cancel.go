package ingest

import "sync"

// CancellationSignal is polled by the orchestrator and by ProcessFile.
// Done is closed when the whole run must stop. FileDone returns a channel
// closed when one path must stop; a nil channel means never.
type CancellationSignal interface {
	Done() <-chan struct{}
	FileDone(path string) <-chan struct{}
}

// Cancellations is a CancellationSignal driven by explicit calls. Safe for
// concurrent use; the zero value is not usable, use NewCancellations.
type Cancellations struct {
	mu    sync.Mutex
	all   chan struct{}
	files map[string]chan struct{}
	once  sync.Once
}

func NewCancellations() *Cancellations {
	return &Cancellations{all: make(chan struct{}), files: map[string]chan struct{}{}}
}

// Cancel stops the whole run.
func (c *Cancellations) Cancel() {
	c.once.Do(func() { close(c.all) })
}

// CancelFile stops the processing of one path. Files already finished are
// unaffected; files not yet started are reported as cancelled.
func (c *Cancellations) CancelFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.files[path]
	if !ok {
		ch = make(chan struct{})
		c.files[path] = ch
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (c *Cancellations) Done() <-chan struct{} { return c.all }

func (c *Cancellations) FileDone(path string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.files[path]
	if !ok {
		ch = make(chan struct{})
		c.files[path] = ch
	}
	return ch
}

// Release forgets path once its processing has ended, so a long-lived
// Cancellations only holds paths in flight or cancelled ahead of time.
func (c *Cancellations) Release(path string) {
	c.mu.Lock()
	delete(c.files, path)
	c.mu.Unlock()
}

// tracked reports how many paths hold a channel.
func (c *Cancellations) tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// Cancelled reports whether the whole run was cancelled.
func (c *Cancellations) Cancelled() bool {
	select {
	case <-c.all:
		return true
	default:
		return false
	}
}

// release drops the per-file state sig keeps for path, when it keeps any.
func release(sig CancellationSignal, path string) {
	if r, ok := sig.(interface{ Release(string) }); ok {
		r.Release(path)
	}
}

// stopped reports whether sig asks path to stop, without blocking.
func stopped(sig CancellationSignal, path string) bool {
	if sig == nil {
		return false
	}
	select {
	case <-sig.Done():
		return true
	case <-sig.FileDone(path):
		return true
	default:
		return false
	}
}
