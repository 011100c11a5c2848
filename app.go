package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"opentranscribe/audio"
	"opentranscribe/beep"
	"opentranscribe/config"
	"opentranscribe/convert"
	"opentranscribe/hotkey"
	"opentranscribe/log"
	"opentranscribe/metrics"
	"opentranscribe/permission"
	"opentranscribe/session"
	"opentranscribe/transcriber"
	"opentranscribe/typer"
)

// pipeline is one controller with its transport and voice monitor.
type pipeline struct {
	ctrl *session.Controller
	tr   *transcriber.Transport
	vad  *vadProcessor
}

func newPipeline(cfg *config.Config, src audio.Source, device string, em session.Emitter, gate session.Gate, disp view, m *metrics.Metrics) *pipeline {
	p := &pipeline{
		tr: transcriber.New(transcriber.WebSocketDialer(cfg.ServerURL, transcriber.AuthHeader(cfg.AuthToken)), m),
	}
	vad, err := newVADProcessor()
	if err != nil {
		log.Warnf("voice monitor disabled: %v", err)
	} else {
		p.vad = vad
	}

	var onChunk func([]byte)
	if p.vad != nil {
		onChunk = p.vad.Process
	}
	p.ctrl = session.New(session.Config{
		Source:    src,
		Converter: convert.New(),
		Transport: p.tr,
		Emitter:   em,
		Display:   disp,
		Gate:      gate,
		Policy:    cfg.Policy(),
		Metrics:   m,
		OnChunk:   onChunk,
		Server:    cfg.ServerURL,
		Device:    device,
	})
	return p
}

func (p *pipeline) resetVoice() {
	if p.vad != nil {
		p.vad.Reset()
	}
}

// watchVoice drives the level meter and the silence monitor while a
// session is live.
func (p *pipeline) watchVoice(ctx context.Context, disp view, latched func() bool, autoClose time.Duration, autoStop bool) {
	if p.vad == nil {
		return
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var mon *silenceMonitor
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.ctrl.State() != session.Active {
			mon = nil
			continue
		}
		if mon == nil {
			mon = newSilenceMonitor(latched, autoClose)
		}
		disp.Level(p.vad.Level())

		switch mon.Tick(p.vad.HasSpeechTick()) {
		case silenceWarn:
			log.Warn("no voice detected")
			disp.NoVoice(true)
		case silenceRepeat:
			beep.Play(beep.Error)
		case silenceWarnClear:
			disp.NoVoice(false)
		case silenceAutoClose:
			if !autoStop {
				continue
			}
			log.Infof("silence for %v, stopping session", autoClose)
			total, speech := p.vad.Stats()
			log.Infof("voice frames: %d of %d", speech, total)
			mon = nil
			go p.ctrl.Stop()
		}
	}
}

func micProbe(actx audio.Context) permission.Probe {
	return func(context.Context) error {
		devices, err := actx.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return audio.ErrNoDevices
		}
		return nil
	}
}

func modeLine(cfg *config.Config) string {
	return fmt.Sprintf("[%s | %s | hotkey %s]", cfg.Emit(), cfg.Policy(), cfg.Hotkey())
}

// runDictation is the interactive mode: hotkey in, keystrokes out.
func runDictation(ctx context.Context, cfg *config.Config) error {
	if !cfg.Beep {
		beep.Disable()
	} else {
		go beep.Init()
	}

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	dev, err := audio.FindDevice(actx, cfg.Device)
	if err != nil {
		return err
	}

	ty := typer.New(cfg.Emit())
	gate := permission.New(micProbe(actx), func(context.Context) error { return ty.Init() })
	gateErr := gate.Request(ctx)

	src, err := actx.NewSource(dev, audio.CaptureConfig{Allowed: gate.Microphone})
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer src.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	var ctrl *session.Controller
	toggle := func() {
		if err := ctrl.Toggle(); err != nil {
			log.Warnf("toggle: %v", err)
		}
	}

	var (
		disp view
		prog *tea.Program
	)
	if cfg.TUI {
		prog = tea.NewProgram(newTUIModel(cfg.ServerURL, dev, modeLine(cfg), toggle), tea.WithAltScreen())
		disp = tuiDisplay{p: prog}
	} else {
		disp = newLineDisplay(os.Stdout)
	}
	cue := &cueDisplay{view: disp}
	p := newPipeline(cfg, src, src.DeviceName(), ty, gate, cue, m)
	ctrl = p.ctrl
	cue.onActive = p.resetVoice

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiDone := make(chan struct{})
	if prog != nil {
		go func() {
			defer close(uiDone)
			if _, err := prog.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
		}()
	}

	if gateErr != nil {
		disp.Error(fmt.Sprintf("Permission check failed: %v", gateErr))
	}

	var (
		signals <-chan hotkey.Signal
		latched = func() bool { return true }
	)
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		disp.Error(fmt.Sprintf("Hotkey unavailable: %v", err))
	} else {
		defer hk.Unregister()
		trig := hotkey.NewTrigger(hk, cfg.Hotkey(), cfg.LongPress, func() bool { return ctrl.State() != session.Idle })
		defer trig.Close()
		signals = trig.Signals()
		latched = trig.Latched
	}

	go p.watchVoice(ctx, cue, latched, cfg.SilenceTimeout, cfg.SilenceStop)
	log.Infof("ready: server=%s device=%s %s", cfg.ServerURL, src.DeviceName(), modeLine(cfg))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-uiDone:
			break loop
		case s := <-signals:
			switch s {
			case hotkey.SignalStart:
				if err := ctrl.Start(); err != nil {
					log.Warnf("start: %v", err)
				}
			case hotkey.SignalStop:
				ctrl.Stop()
			}
		}
	}

	ctrl.Stop()
	if prog != nil {
		prog.Quit()
		<-uiDone
	}
	return nil
}
