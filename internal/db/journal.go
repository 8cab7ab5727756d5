package db

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
)

const defaultJournalBuffer = 1024

// EventWriter persists a single event.
type EventWriter interface {
	AppendEvent(ctx context.Context, event models.Event) error
}

// Journal is an engine sink that persists events in the background. Publish
// never blocks: when the buffer is full the event is dropped and logged.
type Journal struct {
	writer  EventWriter
	events  chan models.Event
	timeout time.Duration
}

// NewJournal creates a journal writing through w
func NewJournal(w EventWriter, buffer int) *Journal {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	return &Journal{
		writer:  w,
		events:  make(chan models.Event, buffer),
		timeout: 5 * time.Second,
	}
}

func (j *Journal) Publish(event models.Event) {
	select {
	case j.events <- event:
	default:
		log.WithField("event", event.EventType()).Warn("journal buffer full, event dropped")
	}
}

// Run writes queued events until ctx is done, then drains what is left.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case event := <-j.events:
			j.write(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-j.events:
					j.write(event)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.writer.AppendEvent(ctx, event); err != nil {
		log.WithError(err).WithField("event", event.EventType()).Warn("failed to journal event")
	}
}
