package main

import (
	"github.com/spf13/cobra"

	"github.com/lone-faerie/sensorlink/internal/build"
	"github.com/lone-faerie/sensorlink/internal/cleanup"
	"github.com/lone-faerie/sensorlink/log"
)

// Persistent flags shared by every command
var (
	ConfigPath string        // Path to the config file (default is first of $SENSORLINK_CONFIG_PATH, $XDG_CONFIG_HOME/sensorlink.yaml, $HOME/.config/sensorlink.yaml)
	Broker     string        // MQTT broker address
	Port       int           // MQTT broker port
	Username   string        // MQTT broker username
	Password   string        // MQTT broker password
	CertFile   string        // MQTT TLS certificate file (PEM encoded)
	KeyFile    string        // MQTT TLS private key file (PEM encoded)
	LogLevel   log.LevelFlag // Log level
)

// RootCommand is the root [cobra.Command] of sensorlink.
var RootCommand = &cobra.Command{
	Use:     "sensorlink [command]",
	Short:   "Publish sensor telemetry over MQTT",
	Version: build.Version(),
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup.Cleanup()
	},
	SilenceErrors:     true,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	RootCommand.AddGroup(
		&cobra.Group{ID: "commands", Title: "Commands:"},
	)

	flags := RootCommand.PersistentFlags()
	flags.SortFlags = false
	flags.StringVarP(&ConfigPath, "config", "c", "", "Path to config file")
	flags.StringVarP(&Broker, "broker", "b", "", "MQTT broker address")
	flags.IntVarP(&Port, "port", "p", 1883, "MQTT broker port")
	flags.StringVar(&Username, "username", "", "MQTT client username")
	flags.StringVar(&Password, "password", "", "MQTT client password")
	flags.StringVar(&CertFile, "cert", "", "MQTT TLS certificate file (PEM encoded)")
	flags.StringVar(&KeyFile, "key", "", "MQTT TLS private key file (PEM encoded)")
	flags.VarP(&LogLevel, "log", "l", "Log level (DEBUG, INFO, WARN, ERROR, DISABLED)")

	RootCommand.MarkPersistentFlagFilename("config", "yaml", "yml")

	RootCommand.SetHelpTemplate(RootCommand.HelpTemplate() + "\n" + fullDocsFooter + "\n")
}
