package main

import (
	"github.com/spf13/cobra"

	"github.com/lone-faerie/sensorlink/log"
)

var Validate bool // Validate the config

// ConfigCommand prints the effective configuration.
var ConfigCommand = &cobra.Command{
	Use:   "config [flags]",
	Short: "Print the effective config",
	Long: `Print the configuration that run would use as YAML, after expanding environment variables and secrets and applying the flags.

Secrets are printed in clear text.`,
	GroupID: "commands",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log.SetLogLevel(log.LevelWarn)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if Validate {
			if err = cfg.Validate(); err != nil {
				return &ExitError{err, 2}
			}
		}

		return cfg.Write(cmd.OutOrStdout())
	},
}

func init() {
	ConfigCommand.Flags().BoolVar(&Validate, "validate", false, "Exit with an error if the config is invalid")

	RootCommand.AddCommand(ConfigCommand)
}
