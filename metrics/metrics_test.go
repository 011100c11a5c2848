package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.FrameCaptured()
	m.FrameDropped(DropConvert)
	m.ChunkSent(640)
	m.SendError()
	m.MessageReceived(true)
	m.DecodeError()
	m.Connected(time.Millisecond)
	m.SessionStarted()
	m.SetSessionState(2)
	m.Emitted(5, nil)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ChunkSent(640)
	m.ChunkSent(640)
	m.FrameDropped(DropDisconnected)
	m.MessageReceived(true)
	m.MessageReceived(false)
	m.MessageReceived(false)
	m.Emitted(11, nil)
	m.Emitted(3, errors.New("uinput gone"))

	if got := testutil.ToFloat64(m.ChunksSent); got != 2 {
		t.Errorf("chunks sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesSent); got != 1280 {
		t.Errorf("bytes sent = %v, want 1280", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropDisconnected)); got != 1 {
		t.Errorf("dropped(disconnected) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Messages.WithLabelValues("interim")); got != 2 {
		t.Errorf("interim = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EmittedChars); got != 11 {
		t.Errorf("emitted = %v, want 11", got)
	}
	if got := testutil.ToFloat64(m.EmitErrors); got != 1 {
		t.Errorf("emit errors = %v, want 1", got)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SessionStarted()
	if got := testutil.ToFloat64(b.SessionsStarted); got != 0 {
		t.Errorf("second registry saw %v sessions", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.SetSessionState(2)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "opentranscribe_session_state 2") {
		t.Errorf("exposition missing session state:\n%s", body)
	}
}
