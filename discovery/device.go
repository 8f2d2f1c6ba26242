package discovery

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Connection is a tuple of the form [connnection_type, connection_identifier] used for
// the device mapping of the discovery payload.
//
// For example the MAC address of a network interface:
//
//	Connection{"mac", "02:5b:26:a8:dc:12"}
type Connection [2]string

// Device implements the device mapping for the discovery payload. This ties components
// together in Home Assistant's device registry.
type Device struct {
	ConfigurationURL string       `json:"cu,omitempty"`
	Connections      []Connection `json:"cns,omitempty"`
	HWVersion        string       `json:"hw,omitempty"`
	Identifiers      []string     `json:"ids,omitempty"`
	Manufacturer     string       `json:"mf,omitempty"`
	Model            string       `json:"mdl,omitempty"`
	ModelID          string       `json:"mdl_id,omitempty"`
	Name             string       `json:"name,omitempty"`
	SerialNumber     string       `json:"sn,omitempty"`
	SuggestedArea    string       `json:"sa,omitempty"`
	SWVersion        string       `json:"sw,omitempty"`
}

var defaultHostnames = []string{
	"localhost",
	"raspberrypi",
	"debian",
}

// NewDevice returns a Device named name. If name is blank or "hostname" the
// device is named after host, unless host is a distribution default.
func NewDevice(name, host string) *Device {
	d := &Device{Model: "sensorlink"}

	switch name {
	case "", "hostname":
		if host != "" && !slices.Contains(defaultHostnames, host) {
			d.Name = Title(host)
		}
	default:
		d.Name = name
	}
	if d.Name == "" {
		d.Name = "Sensorlink"
	}
	return d
}

// Title returns s in title case with separators replaced by spaces.
func Title(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return cases.Title(language.English).String(s)
}
