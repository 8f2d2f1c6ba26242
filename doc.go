// Package sensorlink bridges sensor telemetry to an MQTT broker.
//
// The bridge waits for the network link, synchronizes the clock with NTP,
// connects to the broker with a last will on <topic_prefix>/availability and
// announces itself "online". It then publishes every reading of its
// telemetry source, either NUL-terminated JSON messages from a serial-attached
// sensor board or a fixed set of readings on a schedule, and reconnects
// whenever the connection is lost.
//
// If no config file is specified, the default path will be determined by the
// first defined value of $SENSORLINK_CONFIG_PATH, $XDG_CONFIG_HOME/sensorlink.yaml,
// or $HOME/.config/sensorlink.yaml. If the file does not exist, the default
// configuration will be used, which looks for the following environment
// variables:
//
//   - broker:    $SENSORLINK_BROKER_ADDRESS
//   - client_id: $SENSORLINK_CLIENT_ID
//   - username:  $SENSORLINK_BROKER_USERNAME
//   - password:  $SENSORLINK_BROKER_PASSWORD
//
// Full documentation is available at:
// https://pkg.go.dev/github.com/lone-faerie/sensorlink
package sensorlink
