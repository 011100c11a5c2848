package transcriber

import (
	"context"
	"errors"
	"sync"
)

var errFakeClosed = errors.New("fake connection closed")

// FakeConn is an in-memory Conn. Messages pushed with Push are returned by
// Recv in order; chunks passed to Send are recorded.
type FakeConn struct {
	inbox  chan []byte
	fail   chan error
	closed chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	onSend  func([]byte)
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbox:  make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Dialer returns a Dialer that hands out this connection. If gate is not
// nil the dial blocks until gate is closed.
func (f *FakeConn) Dialer(gate <-chan struct{}) Dialer {
	return func(ctx context.Context) (Conn, error) {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return f, nil
	}
}

// FailingDialer always fails with err.
func FailingDialer(err error) Dialer {
	return func(context.Context) (Conn, error) { return nil, err }
}

func (f *FakeConn) Push(msg string) {
	f.inbox <- []byte(msg)
}

// Fail makes the pending or next Recv return err.
func (f *FakeConn) Fail(err error) {
	select {
	case f.fail <- err:
	default:
	}
}

func (f *FakeConn) SetSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// OnSend registers a callback invoked for every chunk written.
func (f *FakeConn) OnSend(fn func([]byte)) {
	f.mu.Lock()
	f.onSend = fn
	f.mu.Unlock()
}

func (f *FakeConn) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeConn) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *FakeConn) Send(ctx context.Context, chunk []byte) error {
	if f.Closed() {
		return errFakeClosed
	}
	f.mu.Lock()
	err := f.sendErr
	fn := f.onSend
	if err == nil {
		f.sent = append(f.sent, chunk)
	}
	f.mu.Unlock()
	if err == nil && fn != nil {
		fn(chunk)
	}
	return err
}

func (f *FakeConn) Recv(ctx context.Context) ([]byte, error) {
	// queued messages win over a close so tests can push then close
	select {
	case msg := <-f.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-f.inbox:
		return msg, nil
	case err := <-f.fail:
		return nil, err
	case <-f.closed:
		return nil, errFakeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}
