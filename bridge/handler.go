package bridge

import "github.com/lone-faerie/sensorlink/log"

// Handler handles messages received on subscribed topics. It is called from
// the MQTT client's goroutines.
type Handler interface {
	HandleMessage(topic string, payload []byte)
}

// HandlerFunc is a function used as a Handler.
type HandlerFunc func(topic string, payload []byte)

func (f HandlerFunc) HandleMessage(topic string, payload []byte) {
	f(topic, payload)
}

type logHandler struct{}

// LogHandler returns the default Handler, which logs every message.
func LogHandler() Handler {
	return logHandler{}
}

func (logHandler) HandleMessage(topic string, payload []byte) {
	log.Info("Received", "topic", topic, "payload", string(payload))
}
