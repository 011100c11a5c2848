package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"opentranscribe/log"
	"opentranscribe/metrics"
)

// outboxSize bounds the audio queued for the sender. A full outbox means the
// network is behind; new chunks are dropped rather than buffered.
const outboxSize = 4

var (
	ErrDial         = errors.New("connect failed")
	ErrRemoteClosed = errors.New("connection closed")
	ErrConnected    = errors.New("transport already connected")
)

// RemoteCloseError is returned by Conn.Recv when the peer sent a close frame.
type RemoteCloseError struct {
	Code   int
	Reason string
}

func (e *RemoteCloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (status %d)", e.Code)
	}
	return "connection closed: " + e.Reason
}

func (e *RemoteCloseError) Unwrap() error { return ErrRemoteClosed }

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is one established connection to the recognizer.
type Conn interface {
	Send(ctx context.Context, chunk []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer func(ctx context.Context) (Conn, error)

// Handlers receive transport notifications. OnEvent and OnSendError run on
// the transport's goroutines. The terminal OnState(Disconnected, err) runs
// after those goroutines have exited, so it may call Disconnect or Connect.
type Handlers struct {
	OnEvent     func(Event)
	OnState     func(State, error)
	OnSendError func(error)
}

func (h Handlers) event(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h Handlers) state(s State, err error) {
	if h.OnState != nil {
		h.OnState(s, err)
	}
}

func (h Handlers) sendError(err error) {
	if h.OnSendError != nil {
		h.OnSendError(err)
	}
}

// Transport owns one persistent connection at a time.
type Transport struct {
	dial    Dialer
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	gen    uint64
	conn   Conn
	cancel context.CancelFunc
	outbox chan []byte
	done   chan struct{}
	stats  Stats
	start  time.Time
}

func New(dial Dialer, m *metrics.Metrics) *Transport {
	return &Transport{dial: dial, metrics: m}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats returns counters for the current or most recent connection.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if !t.start.IsZero() && t.state != Disconnected {
		s.SessionDur = time.Since(t.start)
	}
	return s
}

// Connect starts dialing in the background and returns immediately.
func (t *Transport) Connect(ctx context.Context, h Handlers) error {
	t.mu.Lock()
	if t.state != Disconnected {
		t.mu.Unlock()
		return ErrConnected
	}
	connCtx, cancel := context.WithCancel(ctx)
	t.gen++
	gen := t.gen
	t.state = Connecting
	t.cancel = cancel
	t.outbox = make(chan []byte, outboxSize)
	t.done = make(chan struct{})
	t.stats = Stats{}
	t.start = time.Now()
	outbox, done := t.outbox, t.done
	t.mu.Unlock()

	h.state(Connecting, nil)
	go t.run(connCtx, cancel, gen, h, outbox, done)
	return nil
}

// Send queues chunk for the sender without blocking. Chunks are dropped
// while not connected or when the outbox is full.
func (t *Transport) Send(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Connected {
		t.metrics.FrameDropped(metrics.DropDisconnected)
		return
	}
	select {
	case t.outbox <- chunk:
	default:
		t.stats.DroppedChunks++
		t.metrics.FrameDropped(metrics.DropBackpressure)
	}
}

// Disconnect closes the connection and waits for the transport goroutines.
// Safe to call at any time, any number of times.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.done == nil {
		t.state = Disconnected
		t.mu.Unlock()
		return
	}
	cancel, conn, done := t.cancel, t.conn, t.done
	t.gen++
	t.state = Disconnected
	t.cancel = nil
	t.conn = nil
	t.done = nil
	t.mu.Unlock()

	// Close before cancelling so the peer sees a normal closure.
	if conn != nil {
		conn.Close()
	}
	cancel()
	<-done
}

func (t *Transport) run(ctx context.Context, cancel context.CancelFunc, gen uint64, h Handlers, outbox chan []byte, done chan struct{}) {
	err := t.serve(ctx, cancel, gen, h, outbox)
	cancel()

	t.mu.Lock()
	current := t.gen == gen
	if current {
		t.state = Disconnected
		t.conn = nil
		t.cancel = nil
		t.done = nil
		t.stats.SessionDur = time.Since(t.start)
	}
	stats := t.stats
	t.mu.Unlock()

	log.StreamMetrics(stats.LogData())
	close(done)

	if current {
		log.Warnf("transport ended: %v", err)
		h.state(Disconnected, err)
	}
}

// serve dials and runs the sender and receive loop. It returns the error
// that ended the connection.
func (t *Transport) serve(ctx context.Context, cancel context.CancelFunc, gen uint64, h Handlers, outbox chan []byte) error {
	dialStart := time.Now()
	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDial, err)
	}
	defer conn.Close()

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return ctx.Err()
	}
	t.conn = conn
	t.state = Connected
	t.stats.ConnectDur = time.Since(dialStart)
	connectDur := t.stats.ConnectDur
	t.mu.Unlock()

	t.metrics.Connected(connectDur)
	log.Infof("connected in %dms", connectDur.Milliseconds())
	h.state(Connected, nil)

	sendDone := make(chan struct{})
	go t.runSender(ctx, conn, h, outbox, sendDone)
	defer func() { <-sendDone }()
	defer cancel()

	return t.receive(ctx, conn, h)
}

func (t *Transport) runSender(ctx context.Context, conn Conn, h Handlers, outbox <-chan []byte, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-outbox:
			if err := conn.Send(ctx, chunk); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.mu.Lock()
				t.stats.SendErrors++
				t.mu.Unlock()
				t.metrics.SendError()
				h.sendError(err)
				continue
			}
			t.mu.Lock()
			t.stats.SentChunks++
			t.stats.SentBytes += uint64(len(chunk))
			t.mu.Unlock()
			t.metrics.ChunkSent(len(chunk))
		}
	}
}

func (t *Transport) receive(ctx context.Context, conn Conn, h Handlers) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := conn.Recv(ctx)
		if err != nil {
			return err
		}

		ev, ok := DecodeEvent(data)
		t.mu.Lock()
		t.stats.RecvMessages++
		switch {
		case !ok:
			t.stats.DecodeErrors++
		case ev.Final:
			t.stats.RecvFinal++
		default:
			t.stats.RecvInterim++
		}
		t.mu.Unlock()

		if !ok {
			t.metrics.DecodeError()
			continue
		}
		t.metrics.MessageReceived(ev.Final)
		h.event(ev)
	}
}
