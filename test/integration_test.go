//go:build integration

package test_test

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"
)

var (
	testBinary string
	fixtures   string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("OPENTRANSCRIBE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "OPENTRANSCRIBE_TEST_BIN not set; build the binary and point it there")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "opentranscribe-it")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fixtures = dir
	if err := writeWAV(filepath.Join(dir, "tone.wav"), 44100, 2, 1.0, 440); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	if err := writeWAV(filepath.Join(dir, "silence.wav"), 16000, 1, 1.0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func writeWAV(path string, rate, channels int, seconds, freq float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := int(float64(rate) * seconds)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
		Data:           make([]int, n*channels),
	}
	for i := 0; i < n; i++ {
		v := int(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			buf.Data[i*channels+c] = v
		}
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// fakeServer sends an interim on the first chunk and a final every tenth.
func fakeServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer it-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		words := []string{}
		for n := 1; ; n++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			switch {
			case n == 1:
				conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"one","final":false}`))
			case n%10 == 0 && len(words) < 3:
				words = append(words, []string{"one", "two", "three"}[len(words)])
				msg := fmt.Sprintf(`{"text":%q,"final":true}`, strings.Join(words, " "))
				conn.WriteMessage(websocket.TextMessage, []byte(msg))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runBinary(t *testing.T, stdin string, args ...string) (logDir, stdout string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"--logpath", logDir, "--config", filepath.Join(logDir, "none.yaml")}, args...)
	os.WriteFile(filepath.Join(logDir, "none.yaml"), nil, 0644)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()
	var errOut strings.Builder
	cmd.Stderr = &errOut

	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("binary exited with error: %v\nstdout: %s\nstderr: %s", err, out, errOut.String())
	}
	return logDir, string(out)
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func replayArgs(server, wav string, extra ...string) []string {
	args := []string{"replay", "--server-url", server, "--auth-token", "it-token", "--realtime=false"}
	return append(append(args, extra...), filepath.Join(fixtures, wav))
}

func TestReplayWords(t *testing.T) {
	logDir, out := runBinary(t, "", replayArgs(fakeServer(t), "tone.wav")...)
	if strings.TrimSpace(out) != "one two three" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(readLog(t, logDir, "transcribe_log.txt"), "three") {
		t.Error("transcribe_log.txt missing emitted text")
	}
}

func TestReplayMetrics(t *testing.T) {
	logDir, _ := runBinary(t, "", replayArgs(fakeServer(t), "tone.wav")...)
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"stream_transcription", "connect_ms", "session_start", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
}

func TestReplayScriptTwoSessions(t *testing.T) {
	script := cmds(
		"KEYDOWN", "KEYUP", "WAIT_ACTIVE", "SLEEP 200", "KEYDOWN", "KEYUP", "WAIT",
		"KEYDOWN", "KEYUP", "WAIT_ACTIVE", "SLEEP 200", "KEYDOWN", "KEYUP", "WAIT",
		"QUIT",
	)
	logDir, _ := runBinary(t, script, replayArgs(fakeServer(t), "tone.wav", "--script", "-")...)
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if n := strings.Count(diag, "session_start"); n != 2 {
		t.Errorf("saw %d sessions, want 2", n)
	}
}

func TestReplayHybridHold(t *testing.T) {
	script := cmds("KEYDOWN", "WAIT_ACTIVE", "SLEEP 600", "KEYUP", "WAIT", "QUIT")
	logDir, _ := runBinary(t, script, replayArgs(fakeServer(t), "silence.wav", "--script", "-", "--hotkey-mode", "hybrid")...)
	if !strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "session_end") {
		t.Error("hold-to-talk session did not end on release")
	}
}

func TestReplayRealServer(t *testing.T) {
	server := os.Getenv("OPENTRANSCRIBE_TEST_SERVER")
	wav := os.Getenv("OPENTRANSCRIBE_TEST_WAV")
	if server == "" || wav == "" {
		t.Skip("OPENTRANSCRIBE_TEST_SERVER or OPENTRANSCRIBE_TEST_WAV not set")
	}
	logDir := t.TempDir()
	cmd := exec.Command(testBinary, "--logpath", logDir, "replay", "--server-url", server, wav)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if strings.TrimSpace(string(out)) == "" {
		t.Error("no text transcribed")
	}
}

func TestVersion(t *testing.T) {
	out, err := exec.Command(testBinary, "version").Output()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "opentranscribe ") {
		t.Errorf("version output = %q", out)
	}
}
