package proxy

import (
	"errors"
	"io"
	"time"
)

var errIdleTimeout = errors.New("proxy: idle timeout while streaming response body")

// idleTimeoutReader wraps a Reader and fails with errIdleTimeout if
// no Read call observes any progress within timeout, implementing the
// proxy_timeout distinction from timeout: this one only starts
// ticking once the response has begun streaming.
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration) *idleTimeoutReader {
	return &idleTimeoutReader{r: r, timeout: timeout, timer: time.NewTimer(timeout)}
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.r.Read(p)
		done <- result{n, err}
	}()

	if !r.timer.Stop() {
		select {
		case <-r.timer.C:
		default:
		}
	}
	r.timer.Reset(r.timeout)

	select {
	case res := <-done:
		return res.n, res.err
	case <-r.timer.C:
		return 0, errIdleTimeout
	}
}
