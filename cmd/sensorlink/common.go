package main

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/internal/cleanup"
	"github.com/lone-faerie/sensorlink/log"
)

func findConfig() {
	const defaultConfigFile = "sensorlink.yaml"

	if ConfigPath != "" {
		return
	}

	if env, ok := os.LookupEnv("SENSORLINK_CONFIG_PATH"); ok {
		ConfigPath = env
		return
	}

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		ConfigPath = filepath.Join(xdg, defaultConfigFile)
		return
	}

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	ConfigPath = filepath.Join(home, ".config", defaultConfigFile)
}

// loadConfig loads the config file and applies the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	findConfig()

	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}

	if err = flagsToConfig(cfg, cmd); err != nil {
		return nil, err
	}

	return cfg, nil
}

// maybeWithPort appends port to addr unless addr already ends with one.
func maybeWithPort(addr string, port int) string {
	if addr == "" || port < 0 {
		return addr
	}

	if i := strings.LastIndexByte(addr, ':'); i >= 0 && i < len(addr)-1 {
		if _, err := strconv.ParseUint(addr[i+1:], 10, 16); err == nil {
			return addr
		}
	}

	if strings.Count(addr, ":") > 1 && !strings.Contains(addr, "://") && !strings.HasPrefix(addr, "[") {
		addr = "[" + addr + "]"
	}

	return addr + ":" + strconv.Itoa(port)
}

func flagsToConfig(cfg *config.Config, cmd *cobra.Command) error {
	flags := cmd.Flags()

	if flags.Changed("log") {
		cfg.Log.Level = log.Level(LogLevel)
	}

	if Broker != "" {
		cfg.MQTT.Broker = maybeWithPort(Broker, Port)
	}

	if Username != "" {
		cfg.MQTT.Username = Username
	}

	if Password != "" {
		cfg.MQTT.Password = Password
	}

	if CertFile != "" {
		cfg.MQTT.CertFile = CertFile
	}

	if KeyFile != "" {
		cfg.MQTT.KeyFile = KeyFile
	}

	if ClientID != "" {
		cfg.MQTT.ClientID = ClientID
	}

	if Source != "" {
		cfg.Telemetry.Source = Source
	}

	if SerialPort != "" {
		cfg.Telemetry.Serial.Port = SerialPort
	}

	if Baud > 0 {
		cfg.Telemetry.Serial.Baud = Baud
	}

	if Interval > 0 {
		cfg.Telemetry.Interval = Interval
	}

	if NoTimeSync {
		cfg.Time.Enabled = false
	}

	if Discovery == "disabled" {
		cfg.Discovery.Enabled = false
	} else if Discovery != "" {
		cfg.Discovery.Enabled = true
		cfg.Discovery.Prefix = Discovery
	}

	return nil
}

func setLogHandler(cfg *config.Config, minLevel log.Level) {
	var w io.Writer

	switch strings.ToLower(cfg.Log.Output) {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	case "discard":
		log.SetHandler(log.DiscardHandler)
		return
	default:
		f, err := os.OpenFile(cfg.Log.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Error(
				"Unable to open log file, deferring to stderr",
				err,
			)

			return
		}

		w = f

		cleanup.Register(func() { f.Close() })
	}

	if cfg.Log.Level < minLevel {
		cfg.Log.Level = minLevel
	}

	log.SetLogLevel(cfg.Log.Level)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		if w == nil {
			w = os.Stderr
		}

		log.SetJSONHandler(w)
	case "text":
		if w == nil {
			w = os.Stderr
		}

		log.SetTextHandler(w)
	default:
		if w != nil {
			log.SetOutput(w)
		}
	}
}
