// SPDX-License-Identifier: MIT

// Package cmd parses the command line.
package cmd

import (
	"errors"
	"slices"

	"github.com/spf13/cobra"

	"audiohost/internal/config"
	"audiohost/pkg/build"
)

// Commands.
const (
	CommandPlay    = "play"
	CommandList    = "list"
	CommandModules = "modules"
)

// Options holds the parsed command line. Flags that were not given leave
// the configuration file values untouched.
type Options struct {
	Command    string
	File       string
	ConfigPath string
	LogFile    string
	TUI        bool

	logLevel string
	sinks    []string
	dsp      []string
	vis      []string
	wavOut   string
	device   int
	volume   int
	ws       bool
	udp      string
	metrics  bool

	changed func(name string) bool
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{Command: CommandPlay}
	var ran bool

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [file]",
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			options.File = args[0]
			ran = true
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Play command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "play <file>",
		Short: "Play a WAV or FLAC file through the active modules",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.File = args[0]
			ran = true
		},
	})

	// List command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio output devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
			ran = true
		},
	})

	// Modules command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List the builtin effect and visualization modules",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandModules
			ran = true
		},
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&options.ConfigPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")
	flags.StringVar(&options.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	flags.StringVar(&options.LogFile, "log-file", "",
		"Write logs to this file instead of stderr")
	flags.StringSliceVar(&options.sinks, "sink", nil,
		"Output sink (null, portaudio, oto, wav); repeatable")
	flags.StringSliceVar(&options.dsp, "dsp", nil,
		"Effect module to start, in chain order; repeatable")
	flags.StringSliceVar(&options.vis, "vis", nil,
		"Visualization module to start; repeatable")
	flags.BoolVarP(&options.TUI, "tui", "t", false,
		"Open the interactive module manager while playing")
	flags.StringVarP(&options.wavOut, "wav-out", "o", "",
		"Also write the processed audio to this WAV file")
	flags.IntVarP(&options.device, "device", "d", -1,
		"PortAudio output device ID. Use 'list' command to see available devices.")
	flags.IntVar(&options.volume, "volume", 255,
		"Output volume, 0..255")
	flags.BoolVar(&options.ws, "ws", false,
		"Serve visualization frames over WebSocket")
	flags.StringVar(&options.udp, "udp", "",
		"Send spectrum packets to this UDP address")
	flags.BoolVar(&options.metrics, "metrics", false,
		"Serve Prometheus metrics on the WebSocket server")
	options.changed = func(name string) bool { return flags.Changed(name) }

	// Execute the CLI. A nil slice would make cobra fall back to os.Args.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if !ran {
		// --help or --version
		return nil, ErrNoCommand
	}
	return options, nil
}

// ErrNoCommand is returned when the arguments only asked for help or the
// version.
var ErrNoCommand = errors.New("no command to run")

// Apply overrides cfg with every flag that was given.
func (o *Options) Apply(cfg *config.Config) {
	if o.changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if o.changed("sink") {
		cfg.Output.Sinks = o.sinks
	}
	if o.changed("dsp") {
		cfg.DSP.Start = o.dsp
	}
	if o.changed("vis") {
		cfg.Vis.Start = o.vis
	}
	if o.changed("device") {
		cfg.Output.Device = o.device
	}
	if o.changed("volume") {
		cfg.Output.Volume = o.volume
	}
	if o.changed("wav-out") {
		cfg.Output.WavPath = o.wavOut
		if !slices.Contains(cfg.Output.Sinks, config.SinkWav) {
			cfg.Output.Sinks = append(cfg.Output.Sinks, config.SinkWav)
		}
	}
	if o.changed("ws") {
		cfg.Transport.WebSocketEnabled = o.ws
	}
	if o.changed("udp") {
		cfg.Transport.UDPEnabled = o.udp != ""
		cfg.Transport.UDPTargetAddress = o.udp
	}
	if o.changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
}
