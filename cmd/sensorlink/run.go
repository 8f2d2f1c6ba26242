package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lone-faerie/sensorlink/bridge"
	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/link"
	"github.com/lone-faerie/sensorlink/log"
	"github.com/lone-faerie/sensorlink/mock"
)

// Flags for [RunCommand]
var (
	ClientID   string        // MQTT client id
	Source     string        // Telemetry source, serial or static
	SerialPort string        // Serial port of the sensor board
	Baud       int           // Baud rate of the serial port
	Interval   time.Duration // Interval of the static source
	NoTimeSync bool          // Skip NTP synchronization
	Discovery  string        // Discovery prefix, or 'disabled' to disable
	DryRun     bool          // Print messages instead of publishing them
)

var cfg *config.Config

var errInterrupted = errors.New("interrupted")

// RunCommand is the main [cobra.Command] used for running the bridge.
var RunCommand = &cobra.Command{
	Use:     "run [flags]",
	Aliases: []string{"start"},
	Short:   "Run the telemetry bridge",
	Long: `Run a bridge publishing sensor telemetry to the MQTT broker.

The bridge waits for the network link, synchronizes the clock, connects to the broker and announces itself on <topic_prefix>/availability. It then publishes every reading of the telemetry source, reconnecting whenever the connection is lost, until a signal is received.

	- SIGINT or SIGTERM will gracefully shutdown the bridge.

If no config file is specified, the default path will be determined by the first defined value of $SENSORLINK_CONFIG_PATH, $XDG_CONFIG_HOME/sensorlink.yaml, or $HOME/.config/sensorlink.yaml. If the file does not exist, the default configuration will be used, which looks for the following environment variables:

	- broker:    $SENSORLINK_BROKER_ADDRESS
	- client_id: $SENSORLINK_CLIENT_ID
	- username:  $SENSORLINK_BROKER_USERNAME
	- password:  $SENSORLINK_BROKER_PASSWORD

A .env file next to the config file or in the working directory is loaded first.

All of the flags, if specified, will override the equivalent values in the config. The format of --broker should be scheme://host:port Where "scheme" is one of "tcp", "ssl", or "ws", "host" is the ip-address (or hostname) and "port" is the port on which the broker is accepting connections. If "scheme" is not defined, it defaults to "tcp" and if "port" is not defined, it will use the value of --port (default 1883).`,
	Example: `  sensorlink run --config sensorlink.yaml
  sensorlink run --broker 192.168.1.10 --serial /dev/ttyACM0
  sensorlink run --source static --interval 5s --dry-run`,
	GroupID: "commands",
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
		if err = PrintBanner(cmd); err != nil {
			cmd.Println(err)
			return
		}

		if cfg, err = loadConfig(cmd); err != nil {
			return
		}

		if DryRun && cfg.MQTT.Broker == "" {
			cfg.MQTT.Broker = "localhost"
		}

		if err = cfg.Validate(); err != nil {
			return &ExitError{err, 2}
		}

		setLogHandler(cfg, log.LevelDebug)
		log.Debug("MQTT broker", "addr", cfg.MQTT.BrokerURI())
		return
	},
	RunE: runBridge,

	DisableFlagsInUseLine: true,
}

func init() {
	flags := RunCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&ClientID, "client-id", "", "MQTT client id")
	flags.StringVarP(&Source, "source", "s", "", "Telemetry source (serial, static)")
	flags.StringVar(&SerialPort, "serial", "", "Serial port of the sensor board")
	flags.IntVar(&Baud, "baud", 0, "Baud rate of the serial port")
	flags.DurationVarP(&Interval, "interval", "i", 0, "Interval of the static source")
	flags.BoolVar(&NoTimeSync, "no-time-sync", false, "Skip NTP time synchronization")
	flags.StringVarP(&Discovery, "discovery", "D", "", "Discovery prefix, or 'disabled' to disable")
	flags.BoolVarP(&DryRun, "dry-run", "n", false, "Print messages to stdout instead of publishing them")

	RunCommand.RegisterFlagCompletionFunc("source", cobra.FixedCompletions(
		[]cobra.Completion{config.SourceSerial, config.SourceStatic},
		cobra.ShellCompDirectiveNoFileComp,
	))

	RootCommand.AddCommand(RunCommand)
}

// dryRunOptions replaces the broker, link and clock synchronization so the
// bridge can run anywhere.
func dryRunOptions(cmd *cobra.Command, cfg *config.Config) []bridge.Option {
	o := cfg.MQTT.ClientOptions(cfg.AvailabilityTopic())
	return []bridge.Option{
		bridge.WithClient(mock.NewClient(o, cmd.OutOrStdout())),
		bridge.WithLink(link.Always()),
		bridge.WithSyncer(nil),
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	var opts []bridge.Option
	if DryRun {
		opts = dryRunOptions(cmd, cfg)
	}

	b, err := bridge.New(cfg, opts...)
	if err != nil {
		log.Error("Unable to start bridge", err)
		return &ExitError{err, 1}
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)

		select {
		case sig := <-c:
			log.Info("Received signal", "signal", sig)
			return errInterrupted
		case <-ctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		defer func() {
			b.Close()
			log.Info("Done")
		}()

		return b.Run(ctx)
	})

	if err = g.Wait(); err != nil && !errors.Is(err, errInterrupted) {
		log.Error("Bridge stopped", err)
		return &ExitError{err, 1}
	}

	return nil
}
