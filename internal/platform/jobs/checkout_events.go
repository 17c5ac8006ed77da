package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/storefront/internal/services"
)

// PubSubCheckoutPublisher publishes checkout events to a Pub/Sub topic.
type PubSubCheckoutPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.CheckoutEventPublisher = (*PubSubCheckoutPublisher)(nil)

// NewPubSubCheckoutPublisher constructs a Pub/Sub backed checkout event publisher.
func NewPubSubCheckoutPublisher(topic *pubsub.Topic) (*PubSubCheckoutPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub checkout publisher: topic is required")
	}
	return &PubSubCheckoutPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCheckoutEvent sends the event as JSON and waits for the server-assigned message id.
func (p *PubSubCheckoutPublisher) PublishCheckoutEvent(ctx context.Context, event services.CheckoutEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub checkout publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal checkout event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "reference", event.Reference)
	setAttr(attrs, "sessionId", event.SessionID)
	setAttr(attrs, "purchaseType", event.PurchaseType)
	attrs["itemCount"] = strconv.Itoa(event.ItemCount)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish checkout event: %w", err)
	}
	return id, nil
}

// Ping verifies the topic exists; used by readiness checks.
func (p *PubSubCheckoutPublisher) Ping(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub checkout publisher: not initialised")
	}
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic %s: %w", p.topic.ID(), err)
	}
	if !ok {
		return fmt.Errorf("topic %s does not exist", p.topic.ID())
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
