package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"opentranscribe/audio"
	"opentranscribe/beep"
	"opentranscribe/config"
	"opentranscribe/hotkey"
	"opentranscribe/metrics"
	"opentranscribe/permission"
	"opentranscribe/session"
	"opentranscribe/transcriber"
	"opentranscribe/typer"
)

type replayOptions struct {
	// Tail keeps the session open after the file ends so the server can
	// finalize the last words.
	Tail time.Duration
	// Script drives a fake hotkey line by line. Nil starts one session,
	// waits for the file to finish and stops.
	Script io.Reader
	// Type emits through the keyboard instead of writing to out.
	Type bool
}

// writerEmitter appends emitted text to a writer.
type writerEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func (e *writerEmitter) Emit(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.w, text)
	return err
}

// runReplay streams a recorded file through the full pipeline. Emitted text
// goes to out; state, errors and stats go to diag.
func runReplay(ctx context.Context, cfg *config.Config, fctx *audio.FileContext, opts replayOptions, out, diag io.Writer) error {
	beep.Disable()

	src, audioDone := fctx.NewFileSource(audio.CaptureConfig{})
	defer src.Close()

	var em session.Emitter = &writerEmitter{w: out}
	if opts.Type {
		em = typer.New(cfg.Emit())
	}
	p := newPipeline(cfg, src, src.DeviceName(), em, permission.Static(true), newLineDisplay(diag), metrics.New())

	var err error
	if opts.Script != nil {
		err = runScript(ctx, p, cfg, audioDone, opts.Script)
	} else {
		err = replayOnce(ctx, p, audioDone, opts.Tail)
	}
	p.ctrl.Stop()
	if !opts.Type {
		fmt.Fprintln(out)
	}
	for _, line := range transcriber.FormatStats(p.tr.Stats()) {
		fmt.Fprintln(diag, line)
	}
	if msg := p.ctrl.LastError(); msg != "" {
		return errors.New(msg)
	}
	return err
}

func replayOnce(ctx context.Context, p *pipeline, audioDone <-chan struct{}, tail time.Duration) error {
	if err := p.ctrl.Start(); err != nil {
		return err
	}
	// the session can end early when the connection drops
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for done := false; !done; {
		select {
		case <-audioDone:
			done = true
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if p.ctrl.State() == session.Idle {
				return nil
			}
		}
	}
	select {
	case <-time.After(tail):
	case <-ctx.Done():
	}
	return nil
}

// runScript executes hotkey commands, one per line:
//
//	KEYDOWN, KEYUP     press or release the hotkey
//	WAIT_ACTIVE        block until a session is streaming
//	WAIT               block until the session has ended
//	WAIT_AUDIO_DONE    block until the file has been fully captured
//	SLEEP <ms>
//	QUIT
//
// Blank lines and lines starting with # are ignored.
func runScript(ctx context.Context, p *pipeline, cfg *config.Config, audioDone <-chan struct{}, script io.Reader) error {
	hk := hotkey.NewFake()
	trig := hotkey.NewTrigger(hk, cfg.Hotkey(), cfg.LongPress, func() bool { return p.ctrl.State() != session.Idle })
	defer trig.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-sctx.Done():
				return
			case s := <-trig.Signals():
				if s == hotkey.SignalStart {
					p.ctrl.Start()
				} else {
					p.ctrl.Stop()
				}
			}
		}
	}()

	sc := bufio.NewScanner(script)
	for n := 1; sc.Scan(); n++ {
		cmd := strings.TrimSpace(sc.Text())
		var err error
		switch {
		case cmd == "" || strings.HasPrefix(cmd, "#"):
		case cmd == "KEYDOWN":
			hk.Press()
		case cmd == "KEYUP":
			hk.Release()
		case cmd == "WAIT_ACTIVE":
			err = waitFor(ctx, func() bool { return p.ctrl.State() == session.Active })
		case cmd == "WAIT":
			err = waitFor(ctx, func() bool { return p.ctrl.State() == session.Idle })
		case cmd == "WAIT_AUDIO_DONE":
			select {
			case <-audioDone:
			case <-ctx.Done():
				err = ctx.Err()
			}
		case strings.HasPrefix(cmd, "SLEEP "):
			ms, perr := strconv.Atoi(strings.TrimSpace(cmd[6:]))
			if perr != nil {
				return fmt.Errorf("line %d: bad sleep %q", n, cmd)
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				err = ctx.Err()
			}
		case cmd == "QUIT":
			return nil
		default:
			return fmt.Errorf("line %d: unknown command %q", n, cmd)
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func waitFor(ctx context.Context, cond func() bool) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
