package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for FramesDropped.
const (
	DropConvert      = "convert"
	DropDisconnected = "disconnected"
	DropBackpressure = "backpressure"
)

// Metrics holds the process counters. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
type Metrics struct {
	Registry *prometheus.Registry

	// Capture path
	FramesCaptured prometheus.Counter
	FramesDropped  *prometheus.CounterVec

	// Transport
	ChunksSent      prometheus.Counter
	BytesSent       prometheus.Counter
	SendErrors      prometheus.Counter
	Messages        *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	ConnectDuration prometheus.Histogram

	// Session
	SessionsStarted prometheus.Counter
	SessionState    prometheus.Gauge
	EmittedChars    prometheus.Counter
	EmitErrors      prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_frames_captured_total",
			Help: "Audio frames delivered by the capture device",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opentranscribe_frames_dropped_total",
			Help: "Audio frames or wire chunks dropped before reaching the network",
		}, []string{"reason"}),

		ChunksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_chunks_sent_total",
			Help: "Wire audio chunks written to the socket",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_bytes_sent_total",
			Help: "PCM bytes written to the socket",
		}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_send_errors_total",
			Help: "Failed socket writes",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opentranscribe_messages_received_total",
			Help: "Transcription events received, by kind",
		}, []string{"kind"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_decode_errors_total",
			Help: "Inbound messages discarded as malformed",
		}),
		ConnectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opentranscribe_connect_duration_seconds",
			Help:    "Time to establish the recognizer connection",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_sessions_started_total",
			Help: "Sessions that reached the active state",
		}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "opentranscribe_session_state",
			Help: "Current session state (0 idle, 1 starting, 2 active, 3 stopping)",
		}),
		EmittedChars: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_emitted_characters_total",
			Help: "Characters handed to the input injector",
		}),
		EmitErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opentranscribe_emit_errors_total",
			Help: "Failed input injections",
		}),
	}
}

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ChunkSent(n int) {
	if m != nil {
		m.ChunksSent.Inc()
		m.BytesSent.Add(float64(n))
	}
}

func (m *Metrics) SendError() {
	if m != nil {
		m.SendErrors.Inc()
	}
}

func (m *Metrics) MessageReceived(final bool) {
	if m == nil {
		return
	}
	kind := "interim"
	if final {
		kind = "final"
	}
	m.Messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) Connected(d time.Duration) {
	if m != nil {
		m.ConnectDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

func (m *Metrics) SetSessionState(state int) {
	if m != nil {
		m.SessionState.Set(float64(state))
	}
}

func (m *Metrics) Emitted(chars int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmitErrors.Inc()
		return
	}
	m.EmittedChars.Add(float64(chars))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
