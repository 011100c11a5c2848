// Package session wires capture, conversion, transport and reconciliation
// into one start/stop dictation session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"opentranscribe/audio"
	"opentranscribe/log"
	"opentranscribe/metrics"
	"opentranscribe/reconcile"
	"opentranscribe/transcriber"
)

var ErrCapabilityMissing = errors.New("microphone or input permission not granted")

type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Display receives everything the user should see. Calls may come from any
// goroutine but never overlap for the same session.
type Display interface {
	Hypothesis(text string)
	SessionState(State)
	Connection(transcriber.State)
	// Error shows msg in the single error slot; "" clears it.
	Error(msg string)
}

// Emitter types text into the focused application.
type Emitter interface {
	Emit(text string) error
}

type Gate interface {
	Granted() bool
}

type Converter interface {
	Convert(audio.Frame) ([]byte, bool)
}

type Transport interface {
	Connect(ctx context.Context, h transcriber.Handlers) error
	Send(chunk []byte)
	Disconnect()
}

type Config struct {
	Source    audio.Source
	Converter Converter
	Transport Transport
	Emitter   Emitter
	Display   Display
	Gate      Gate
	Policy    reconcile.Policy
	Metrics   *metrics.Metrics

	// OnChunk observes every converted chunk on the capture goroutine. It
	// must not block.
	OnChunk func([]byte)

	// Server and Device label log lines only.
	Server string
	Device string
}

type Controller struct {
	cfg Config

	// opMu serializes Start, Stop and Toggle. mu guards the fields below and
	// is never held across calls into collaborators.
	opMu sync.Mutex
	mu   sync.Mutex

	state      State
	gen        uint64
	rec        *reconcile.Reconciler
	lastErr    string
	id         string
	emitted    int
	connErr    error
	endReason  string

	streaming atomic.Bool
}

func New(cfg Config) *Controller {
	if cfg.Display == nil {
		cfg.Display = nopDisplay{}
	}
	return &Controller{cfg: cfg, rec: reconcile.New(cfg.Policy)}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError is the most recent user-visible error, or "".
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ID identifies the current or most recent session.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Controller) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.start()
}

func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stop("user")
}

func (c *Controller) Toggle() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.State() == Idle {
		return c.start()
	}
	c.stop("user")
	return nil
}

func (c *Controller) start() error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.Gate != nil && !c.cfg.Gate.Granted() {
		c.mu.Unlock()
		c.fail("Permission required: grant microphone and input access, then try again")
		return ErrCapabilityMissing
	}
	c.gen++
	gen := c.gen
	c.state = Starting
	c.rec.Reset()
	c.id = uuid.NewString()
	c.emitted = 0
	c.connErr = nil
	c.endReason = ""
	id := c.id
	c.mu.Unlock()

	c.notify(Starting)
	log.SessionStart(id, c.cfg.Server, c.cfg.Device)

	if err := c.cfg.Transport.Connect(context.Background(), c.handlers(gen)); err != nil {
		c.abort(fmt.Sprintf("Connection error: %v", err))
		return fmt.Errorf("connect: %w", err)
	}

	c.streaming.Store(true)
	if err := c.cfg.Source.Start(c.onFrame); err != nil {
		c.streaming.Store(false)
		c.cfg.Transport.Disconnect()
		c.abort(fmt.Sprintf("Audio error: %v", err))
		return fmt.Errorf("start capture: %w", err)
	}

	c.mu.Lock()
	connErr := c.connErr
	if connErr == nil {
		c.state = Active
	}
	c.mu.Unlock()

	if connErr != nil {
		// the transport died before capture came up; its error is already shown
		c.stop("connection failed")
		return connErr
	}

	c.cfg.Metrics.SessionStarted()
	c.notify(Active)
	return nil
}

// abort returns a session that never became active to Idle.
func (c *Controller) abort(msg string) {
	c.mu.Lock()
	c.gen++
	c.state = Idle
	c.rec.Reset()
	id := c.id
	c.mu.Unlock()

	c.fail(msg)
	c.cfg.Display.Connection(transcriber.Disconnected)
	c.notify(Idle)
	log.SessionEnd(id, 0, msg)
}

func (c *Controller) stop(reason string) {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Stopping
	// bump the generation so late transport callbacks are ignored
	c.gen++
	if c.endReason == "" {
		c.endReason = reason
	}
	c.mu.Unlock()

	c.notify(Stopping)
	c.streaming.Store(false)
	c.cfg.Source.Stop()
	c.cfg.Transport.Disconnect()

	c.mu.Lock()
	c.rec.Reset()
	c.state = Idle
	id, emitted, why := c.id, c.emitted, c.endReason
	c.mu.Unlock()

	c.cfg.Display.Hypothesis("")
	c.cfg.Display.Connection(transcriber.Disconnected)
	c.notify(Idle)
	log.SessionEnd(id, emitted, why)
}

// stopGen stops the session only if gen is still the live session.
func (c *Controller) stopGen(gen uint64, reason string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	live := c.gen == gen
	c.mu.Unlock()
	if live {
		c.stop(reason)
	}
}

func (c *Controller) notify(s State) {
	c.cfg.Metrics.SetSessionState(int(s))
	c.cfg.Display.SessionState(s)
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	log.Error(msg)
	c.cfg.Display.Error(msg)
}

// onFrame runs on the capture goroutine.
func (c *Controller) onFrame(f audio.Frame) {
	if !c.streaming.Load() {
		return
	}
	c.cfg.Metrics.FrameCaptured()
	chunk, ok := c.cfg.Converter.Convert(f)
	if !ok {
		c.cfg.Metrics.FrameDropped(metrics.DropConvert)
		return
	}
	if c.cfg.OnChunk != nil {
		c.cfg.OnChunk(chunk)
	}
	c.cfg.Transport.Send(chunk)
}

func (c *Controller) handlers(gen uint64) transcriber.Handlers {
	return transcriber.Handlers{
		OnEvent:     func(ev transcriber.Event) { c.onEvent(gen, ev) },
		OnState:     func(s transcriber.State, err error) { c.onTransportState(gen, s, err) },
		OnSendError: func(err error) { log.Warnf("send: %v", err) },
	}
}

func (c *Controller) onEvent(gen uint64, ev transcriber.Event) {
	c.mu.Lock()
	if c.gen != gen || (c.state != Starting && c.state != Active) {
		c.mu.Unlock()
		return
	}
	action := c.rec.OnEvent(ev)
	display := c.rec.Display()
	c.mu.Unlock()

	switch action.Kind {
	case reconcile.UpdateDisplay:
		c.cfg.Display.Hypothesis(action.Text)
	case reconcile.Emit:
		c.emit(action.Text)
		c.cfg.Display.Hypothesis(display)
	case reconcile.NoOp:
		if ev.Final {
			c.cfg.Display.Hypothesis(display)
		}
	}
}

// emit runs on the receive goroutine so emissions keep event order.
// Failures are logged and otherwise ignored; the text counts as emitted.
func (c *Controller) emit(text string) {
	var err error
	if c.cfg.Emitter != nil {
		err = c.cfg.Emitter.Emit(text)
	}
	n := utf8.RuneCountInString(text)
	c.cfg.Metrics.Emitted(n, err)
	if err != nil {
		log.Warnf("emit %d chars: %v", n, err)
		return
	}
	log.TranscriptionText(text)
	c.mu.Lock()
	c.emitted += n
	c.mu.Unlock()
}

func (c *Controller) onTransportState(gen uint64, s transcriber.State, err error) {
	var msg string
	if s == transcriber.Disconnected && err != nil {
		msg = transportMessage(err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	stopNow := false
	switch {
	case s == transcriber.Connected:
		c.lastErr = ""
	case msg != "":
		c.lastErr = msg
		c.endReason = msg
		if c.state == Starting {
			// start() sees this once capture is up and unwinds
			c.connErr = err
		}
		stopNow = c.state == Active
	}
	c.mu.Unlock()

	c.cfg.Display.Connection(s)
	switch {
	case s == transcriber.Connected:
		c.cfg.Display.Error("")
	case msg != "":
		log.Error(msg)
		c.cfg.Display.Error(msg)
	}
	if stopNow {
		go c.stopGen(gen, msg)
	}
}

func transportMessage(err error) string {
	var rc *transcriber.RemoteCloseError
	switch {
	case errors.As(err, &rc):
		if rc.Reason == "" {
			return fmt.Sprintf("Connection closed (status %d)", rc.Code)
		}
		return "Connection closed: " + rc.Reason
	case errors.Is(err, transcriber.ErrDial):
		return fmt.Sprintf("Connection error: %v", err)
	}
	return fmt.Sprintf("Receive error: %v", err)
}

type nopDisplay struct{}

func (nopDisplay) Hypothesis(string)            {}
func (nopDisplay) SessionState(State)           {}
func (nopDisplay) Connection(transcriber.State) {}
func (nopDisplay) Error(string)                 {}
