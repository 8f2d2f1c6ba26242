// Package status drives the indicator that is lit while telemetry is being
// published.
package status

import (
	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/internal/sysfs"
	"github.com/lone-faerie/sensorlink/log"
)

// Indicator is a binary status light.
type Indicator interface {
	Set(on bool) error
}

// LED is an Indicator backed by /sys/class/leds/<name>.
type LED string

func (l LED) Set(on bool) error {
	return sysfs.SetLED(string(l), on)
}

type nop struct{}

func (nop) Set(bool) error { return nil }

// Nop returns an Indicator that does nothing.
func Nop() Indicator { return nop{} }

// New returns the indicator given by cfg, or [Nop] if no usable LED is
// configured.
func New(cfg config.StatusConfig) Indicator {
	if cfg.LED == "" {
		return Nop()
	}
	if !sysfs.LEDExists(cfg.LED) {
		log.Warn("Status LED not found", "led", cfg.LED, "path", sysfs.Path("class", "leds", cfg.LED))
		return Nop()
	}
	return LED(cfg.LED)
}
