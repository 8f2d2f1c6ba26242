package discovery

import (
	"strings"

	"github.com/lone-faerie/sensorlink/discovery/icon"
)

// classes maps well-known sensor names to their device class options.
var classes = map[string]Component{
	"temperature": {
		DeviceClass:       "temperature",
		StateClass:        "measurement",
		UnitOfMeasurement: "°C",
		Icon:              icon.Temperature,
	},
	"humidity": {
		DeviceClass:       "humidity",
		StateClass:        "measurement",
		UnitOfMeasurement: "%",
		Icon:              icon.Humidity,
	},
	"pressure": {
		DeviceClass:       "pressure",
		StateClass:        "measurement",
		UnitOfMeasurement: "hPa",
		Icon:              icon.Pressure,
	},
	"illuminance": {
		DeviceClass:       "illuminance",
		StateClass:        "measurement",
		UnitOfMeasurement: "lx",
		Icon:              icon.Light,
	},
	"movement": {
		Icon: icon.Motion,
	},
	"door": {
		Icon: icon.Door,
	},
}

var aliases = map[string]string{
	"temp":   "temperature",
	"hum":    "humidity",
	"motion": "movement",
	"light":  "illuminance",
	"lux":    "illuminance",
}

func classify(name string) Component {
	name = strings.ToLower(name)
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	return classes[name]
}
