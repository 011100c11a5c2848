// Package doctor runs system checks for everything a dictation session
// needs: hotkey, microphone, keystroke injection, clipboard and server.
package doctor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"opentranscribe/audio"
	"opentranscribe/convert"
	"opentranscribe/hotkey"
	"opentranscribe/transcriber"
	"opentranscribe/typer"
)

type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
	// Fix is printed after a failure.
	Fix string
}

type Options struct {
	Server string
	Token  string
	Device string

	// Audio opens the capture backend. Defaults to audio.NewContext.
	Audio func() (audio.Context, error)
	// WaitHotkey asks the user to press the chord instead of only probing
	// the keyboard devices.
	WaitHotkey bool
	Listen     time.Duration
}

// Checks returns the standard check list for opts.
func Checks(opts Options) []Check {
	if opts.Audio == nil {
		opts.Audio = func() (audio.Context, error) { return audio.NewContext() }
	}
	if opts.Listen <= 0 {
		opts.Listen = 2 * time.Second
	}
	hk := Check{Name: "Hotkey", Run: func(context.Context) (string, error) { return hotkey.Diagnose() }}
	if opts.WaitHotkey {
		hk.Run = waitHotkey
	}
	return []Check{
		hk,
		{
			Name: "Microphone",
			Run:  func(ctx context.Context) (string, error) { return Microphone(ctx, opts.Audio, opts.Device, opts.Listen) },
		},
		{
			Name: "Keystroke output",
			Run:  func(context.Context) (string, error) { return typer.Verify() },
			Fix:  "sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput",
		},
		{Name: "Clipboard", Run: func(context.Context) (string, error) { return Clipboard() }},
		{
			Name: "Server",
			Run: func(ctx context.Context) (string, error) {
				return Server(ctx, transcriber.WebSocketDialer(opts.Server, transcriber.AuthHeader(opts.Token)), opts.Server)
			},
			Fix: "check server_url and that the recognizer is running",
		},
	}
}

// Run executes checks in order and returns 0 when all pass, 1 otherwise.
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "opentranscribe doctor")
	fmt.Fprintln(w, "=====================")
	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		msg, err := c.Run(ctx)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			if c.Fix != "" {
				fmt.Fprintf(w, "  Fix with: %s\n", c.Fix)
			}
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", msg)
	}
	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

func waitHotkey(ctx context.Context) (string, error) {
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return "", fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()
	fmt.Printf("  Press %s...\n", hotkey.Chord)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	select {
	case <-hk.Keydown():
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		resetTerminal()
		return "hotkey detected", nil
	case <-ctx.Done():
		return "", errors.New("timeout waiting for hotkey")
	}
}

// Microphone captures for d and reports the native format and the peak
// level of the converted stream.
func Microphone(ctx context.Context, open func() (audio.Context, error), device string, d time.Duration) (string, error) {
	actx, err := open()
	if err != nil {
		return "", fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	dev, err := audio.FindDevice(actx, device)
	if err != nil {
		return "", err
	}
	src, err := actx.NewSource(dev, audio.CaptureConfig{})
	if err != nil {
		return "", err
	}
	defer src.Close()

	conv := convert.New()
	var (
		mu     sync.Mutex
		frames int
		native audio.Frame
		peak   float64
	)
	err = src.Start(func(f audio.Frame) {
		chunk, ok := conv.Convert(f)
		mu.Lock()
		defer mu.Unlock()
		frames++
		native = f
		if ok {
			peak = math.Max(peak, rms(chunk))
		}
	})
	if err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	src.Stop()

	mu.Lock()
	defer mu.Unlock()
	if frames == 0 {
		return "", fmt.Errorf("no audio from %s in %v", src.DeviceName(), d)
	}
	level := "silent"
	if peak > 0 {
		level = fmt.Sprintf("%.1f dBFS", 20*math.Log10(peak))
	}
	return fmt.Sprintf("%s: %d frames, %d Hz %d ch %s, peak level %s",
		src.DeviceName(), frames, native.SampleRate, native.Channels, native.Format, level), nil
}

// rms of an s16le chunk, normalized to [0,1].
func rms(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Clipboard writes a marker and reads it back. Clipboard helpers can hang
// when no compositor is reachable, hence the timeout.
func Clipboard() (string, error) {
	marker := fmt.Sprintf("opentranscribe-doctor-%d", time.Now().UnixNano())
	type result struct {
		got   string
		err   error
		phase string
	}
	ch := make(chan result, 1)
	go func() {
		if err := cb.WriteAll(marker); err != nil {
			ch <- result{err: err, phase: "write"}
			return
		}
		got, err := cb.ReadAll()
		ch <- result{got: got, err: err, phase: "read"}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("clipboard %s failed: %w", r.phase, r.err)
		}
		if r.got != marker {
			return "", fmt.Errorf("clipboard mismatch: wrote %q, got %q", marker, r.got)
		}
		return "clipboard write/read verified", nil
	case <-time.After(3 * time.Second):
		return "", errors.New("clipboard timed out (compositor not accessible?)")
	}
}

// Server opens and cleanly closes one streaming connection.
func Server(ctx context.Context, dial transcriber.Dialer, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	conn, err := dial(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", url, err)
	}
	elapsed := time.Since(start)
	if err := conn.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}
	return fmt.Sprintf("%s reachable in %dms", url, elapsed.Milliseconds()), nil
}
