package eventbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"

	"github.com/go-envire/envire"
)

// Receiver applies events received from a pubsub subscription to a local
// envire.Environment, one message at a time and in delivery order.
type Receiver struct {
	subscription *pubsub.Subscription
	env          *envire.Environment
}

// NewReceiver constructs a Receiver that applies decoded events to env as
// they arrive on sub.
func NewReceiver(sub *pubsub.Subscription, env *envire.Environment) *Receiver {
	return &Receiver{subscription: sub, env: env}
}

// Stream returns a component.Proc that receives messages until the
// component is asked to stop, decoding and applying each one to the
// receiver's environment. A message that fails to decode or apply is
// logged and skipped rather than treated as fatal, since a single
// malformed or out-of-order event should not take down the whole bridge;
// receive errors other than shutdown are fatal, matching the source
// pattern this is grounded on.
func (r *Receiver) Stream() component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := r.subscription.Receive(l.Context())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return
				}
				l.Fatal(fmt.Errorf("receive: %w", err))
			}
			msg.Ack()

			se, err := decodeEvent(msg.Body)
			if err != nil {
				l.Errorf("eventbridge: %v", err)
				continue
			}
			if err := r.env.ApplyEvents([]envire.SerializedEvent{se}); err != nil {
				l.Errorf("eventbridge: apply event %s: %v", se.Kind.String(), err)
			}
		}
	}
}
