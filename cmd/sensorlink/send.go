package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/lone-faerie/sensorlink/bridge"
	"github.com/lone-faerie/sensorlink/log"
	"github.com/lone-faerie/sensorlink/retry"
	"github.com/lone-faerie/sensorlink/telemetry"
)

// Flags for [SendCommand]
var (
	Raw      bool          // Publish to the sensor argument verbatim
	Attempts int           // Connection attempts before giving up
	Timeout  time.Duration // Time limit of the whole command
)

// SendCommand publishes a single reading.
var SendCommand = &cobra.Command{
	Use:   "send [flags] <sensor> <value>",
	Short: "Publish a single reading",
	Long: `Connect to the MQTT broker, announce availability, publish a single reading to <topic_prefix>/<sensor> and disconnect.

With --raw the reading is published to <sensor> verbatim.`,
	Example: `  sensorlink send temp 21.5
  sensorlink send --raw sensors/home/study/movement 1`,
	GroupID: "commands",
	Args:    cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
		if cfg, err = loadConfig(cmd); err != nil {
			return
		}
		setLogHandler(cfg, log.LevelWarn)
		return
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), Timeout)
		defer cancel()

		b, err := bridge.New(cfg,
			bridge.WithSource(telemetry.NewStatic(0)),
			bridge.WithRetry(retry.Limited{Interval: cfg.MQTT.RetryInterval, Attempts: Attempts}),
		)
		if err != nil {
			return &ExitError{err, 1}
		}

		r := telemetry.Reading{Sensor: args[0], Value: args[1], Qualified: Raw}
		if err = b.Send(ctx, r); err != nil {
			return &ExitError{err, 1}
		}

		log.Info("Sent", "topic", r.Topic(cfg.TopicPrefix), "payload", r.Value)
		return nil
	},

	DisableFlagsInUseLine: true,
}

func init() {
	flags := SendCommand.Flags()
	flags.BoolVar(&Raw, "raw", false, "Publish to <sensor> verbatim")
	flags.IntVar(&Attempts, "attempts", 3, "Connection attempts before giving up")
	flags.DurationVarP(&Timeout, "timeout", "t", 30*time.Second, "Time limit")

	RootCommand.AddCommand(SendCommand)
}
