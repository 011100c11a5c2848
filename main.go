package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opentranscribe/audio"
	"opentranscribe/config"
	"opentranscribe/doctor"
	"opentranscribe/log"
	"opentranscribe/shutdown"
)

var version = "dev"

var errChecksFailed = errors.New("checks failed")

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cfg := new(config.Config)

	root := &cobra.Command{
		Use:           "opentranscribe",
		Short:         "Dictate into any application through a streaming speech recognizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(v, cmd.Flags())
			if err != nil {
				return err
			}
			*cfg = *c
			setupLogging(c.LogPath)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { log.Close() },
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			return runDictation(ctx, cfg)
		},
	}
	config.Flags(root.PersistentFlags())

	root.AddCommand(
		devicesCmd(cfg),
		doctorCmd(cfg),
		replayCmd(cfg),
		&cobra.Command{
			Use:               "version",
			Short:             "Print the version",
			PersistentPreRun:  func(*cobra.Command, []string) {},
			PersistentPostRun: func(*cobra.Command, []string) {},
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "opentranscribe %s\n", version)
			},
		},
	)
	return root
}

func setupLogging(path string) {
	dir, err := log.ResolveDir(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	log.SetDir(dir)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	if err := log.InitCrashLog(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init crash log: %v\n", err)
	}
}

func devicesCmd(cfg *config.Config) *cobra.Command {
	var pick bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("cannot connect to audio: %w", err)
			}
			defer actx.Close()

			out := cmd.OutOrStdout()
			if pick {
				dev, err := audio.SelectDevice(actx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Selected %s\nUse it with: --device %q\n", dev.Name, dev.Name)
				return nil
			}

			devices, err := actx.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return audio.ErrNoDevices
			}
			for _, d := range devices {
				mark := " "
				if d.Name == cfg.Device {
					mark = "*"
				}
				line := fmt.Sprintf("%s %s", mark, d.Name)
				if audio.IsBluetooth(d.Name) {
					line += "  (bluetooth, may switch output to headset mode)"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pick, "pick", false, "choose a device interactively")
	return cmd
}

func doctorCmd(cfg *config.Config) *cobra.Command {
	var (
		waitHotkey bool
		listen     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check hotkey, microphone, keystroke output, clipboard and server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()
			checks := doctor.Checks(doctor.Options{
				Server:     cfg.ServerURL,
				Token:      cfg.AuthToken,
				Device:     cfg.Device,
				WaitHotkey: waitHotkey,
				Listen:     listen,
			})
			if doctor.Run(ctx, cmd.OutOrStdout(), checks) != 0 {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&waitHotkey, "wait-hotkey", false, "wait for the hotkey chord to be pressed")
	cmd.Flags().DurationVar(&listen, "listen", 2*time.Second, "how long to record during the microphone check")
	return cmd
}

func replayCmd(cfg *config.Config) *cobra.Command {
	var (
		opts     replayOptions
		realtime bool
		script   string
	)
	cmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Stream a WAV file through the pipeline and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			fctx, err := audio.NewFileContext(args[0], realtime)
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			switch script {
			case "":
			case "-":
				opts.Script = cmd.InOrStdin()
			default:
				f, err := os.Open(script)
				if err != nil {
					return err
				}
				defer f.Close()
				opts.Script = f
			}
			return runReplay(ctx, cfg, fctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", true, "pace the file at capture speed")
	cmd.Flags().DurationVar(&opts.Tail, "tail", 1500*time.Millisecond, "keep streaming this long after the file ends")
	cmd.Flags().StringVar(&script, "script", "", "hotkey script file, - for stdin")
	cmd.Flags().BoolVar(&opts.Type, "type", false, "emit through the keyboard instead of stdout")
	return cmd
}
