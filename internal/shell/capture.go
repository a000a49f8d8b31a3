package shell

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// capture accumulates supervised-command output from whichever tracer
// produced it and fans each chunk out to the relay chain. It is safe
// for use from the background drain goroutines the syscall strategy
// needs.
type capture struct {
	relays []tracer.OutputFunc

	mu       sync.Mutex
	buf      strings.Builder
	first    time.Time
	hasFirst bool

	wg sync.WaitGroup
}

func newCapture(relays []tracer.OutputFunc) *capture {
	return &capture{relays: relays}
}

// add records one chunk of output and relays it.
func (c *capture) add(stream tracer.Stream, text string) {
	c.mu.Lock()
	c.buf.WriteString(text)
	if !c.hasFirst {
		c.first = time.Now()
		c.hasFirst = true
	}
	c.mu.Unlock()

	for _, relay := range c.relays {
		relay(stream, text)
	}
}

// drainBackground reads the stream until EOF on its own goroutine.
// Used by the syscall strategy, where the tracer itself never touches
// the pipes; the fds stay in blocking mode.
func (c *capture) drainBackground(stream tracer.Stream, f *os.File) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				c.add(stream, string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()
}

// settle waits for background drains to hit EOF, bounded by timeout so
// a pipe held open by an orphaned grandchild cannot wedge the executor.
func (c *capture) settle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// text returns everything captured so far.
func (c *capture) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// firstOutputDelay reports how long after start the first output byte
// arrived, and whether any output arrived at all.
func (c *capture) firstOutputDelay(start time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasFirst {
		return 0, false
	}
	return c.first.Sub(start), true
}
