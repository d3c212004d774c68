package eventbridge

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"

	"gocloud.dev/pubsub"

	"github.com/go-envire/envire"
)

// Publisher is an envire.EventHandler that gob-encodes every event it
// receives and publishes it to a pubsub.Topic. Subscribe it with
// Environment.AddEventHandler to start streaming; the replay-on-subscribe
// sequence is published like any other event, so a topic subscription that
// already exists when the Publisher is added receives it and can rebuild the
// environment's state at subscribe time by replaying it with Receiver. A
// subscription created later does not receive that sequence.
type Publisher struct {
	topic *pubsub.Topic
	log   *slog.Logger
}

// NewPublisher constructs a Publisher that publishes to topic.
func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic, log: slog.Default()}
}

// SetLogger replaces the logger used to report publish failures, which
// HandleEvent swallows to honor envire's handler-exception contract.
func (p *Publisher) SetLogger(l *slog.Logger) { p.log = l }

// HandleEvent implements envire.EventHandler.
func (p *Publisher) HandleEvent(ev envire.Event) {
	se := envire.EncodeEvent(ev)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(se); err != nil {
		p.log.Error("eventbridge: failed to encode event", "kind", ev.Kind().String(), "error", err)
		return
	}
	ctx := context.Background()
	if err := p.topic.Send(ctx, &pubsub.Message{Body: buf.Bytes()}); err != nil {
		p.log.Error("eventbridge: failed to publish event", "kind", ev.Kind().String(), "error", err)
	}
}

func decodeEvent(body []byte) (envire.SerializedEvent, error) {
	var se envire.SerializedEvent
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&se); err != nil {
		return envire.SerializedEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return se, nil
}
