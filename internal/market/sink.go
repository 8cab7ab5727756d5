package market

import (
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
)

// Sink receives every event emitted by the engine. Publish is called while
// the engine holds its lock, so implementations must not block nor call back
// into the engine.
type Sink interface {
	Publish(event models.Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(event models.Event)

func (f SinkFunc) Publish(event models.Event) {
	f(event)
}

// Sinks fans an event out to several sinks in order.
type Sinks []Sink

func (s Sinks) Publish(event models.Event) {
	for _, sink := range s {
		sink.Publish(event)
	}
}

// LogSink writes events to the logger at debug level.
var LogSink = SinkFunc(func(event models.Event) {
	log.WithFields(log.Fields{
		"event": event.EventType(),
		"round": event.EventRound(),
	}).Debugf("%+v", event)
})
