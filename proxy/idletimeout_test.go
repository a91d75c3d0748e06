package proxy

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stallReader struct {
	data  []byte
	delay time.Duration
	read  bool
}

func (s *stallReader) Read(p []byte) (int, error) {
	if s.read {
		time.Sleep(s.delay)
		return 0, io.EOF
	}
	s.read = true
	n := copy(p, s.data)
	return n, nil
}

func TestIdleTimeoutReaderPassesThroughFastReads(t *testing.T) {
	r := newIdleTimeoutReader(strings.NewReader("hello world"), 100*time.Millisecond)
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
}

func TestIdleTimeoutReaderFiresOnStall(t *testing.T) {
	r := newIdleTimeoutReader(&stallReader{data: []byte("x"), delay: 200 * time.Millisecond}, 20*time.Millisecond)
	buf := make([]byte, 64)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, errIdleTimeout)
}
