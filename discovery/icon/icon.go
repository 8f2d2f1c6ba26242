// Package icon provides a few useful [Material Design Icons].
//
// [Material Design Icons]: https://pictogrammers.com/library/mdi/
package icon

// Icon names
const (
	Gauge        = "mdi:gauge"
	Lightbulb    = "mdi:lightbulb"
	MotionSensor = "mdi:motion-sensor"
	Thermometer  = "mdi:thermometer"
	WaterPercent = "mdi:water-percent"
	Door         = "mdi:door"
)

// Icon aliases
const (
	Temperature = Thermometer
	Humidity    = WaterPercent
	Motion      = MotionSensor
	Light       = Lightbulb
	Pressure    = Gauge
)
