package link

import (
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

// IOError reports a transport failure. Op is "connect", "recv" or "send".
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "link " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

var ErrNotConnected = errors.New("not connected")

// countingTransport counts bytes in both directions and remembers the
// first transport error so the receive task can fault the connection.
type countingTransport struct {
	rwc   io.ReadWriteCloser
	stats *trafficStats
	// datagram sockets report ICMP unreachable as a read error; the peer
	// may simply not be up yet
	datagram bool
	backoff  time.Duration

	mu        deadlock.Mutex
	err       error
	closeOnce sync.Once
	closed    chan struct{}
}

func newCountingTransport(rwc io.ReadWriteCloser, stats *trafficStats, datagram bool, backoff time.Duration) *countingTransport {
	return &countingTransport{rwc: rwc, stats: stats, datagram: datagram, backoff: backoff, closed: make(chan struct{})}
}

func (t *countingTransport) Read(p []byte) (int, error) {
	for {
		n, err := t.rwc.Read(p)
		if n > 0 {
			t.stats.addReceived(n)
		}
		if err != nil && t.datagram && errors.Is(err, syscall.ECONNREFUSED) {
			select {
			case <-t.closed:
				return n, err
			case <-time.After(t.backoff):
			}
			if n == 0 {
				continue
			}
			err = nil
		}
		if err != nil {
			t.fail(&IOError{Op: "recv", Err: err})
		}
		return n, err
	}
}

func (t *countingTransport) Write(p []byte) (int, error) {
	n, err := t.rwc.Write(p)
	if n > 0 {
		t.stats.addSent(n)
	}
	if err != nil {
		t.fail(&IOError{Op: "send", Err: err})
	}
	return n, err
}

func (t *countingTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.rwc.Close()
	})
	return err
}

func (t *countingTransport) fail(err error) {
	select {
	case <-t.closed:
		// errors after an orderly close are expected
		return
	default:
	}
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

func (t *countingTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
