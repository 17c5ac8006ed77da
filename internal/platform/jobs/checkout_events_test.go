package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/storefront/internal/services"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPubSubCheckoutPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)

	topic, err := client.CreateTopic(ctx, "checkout-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubCheckoutPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCheckoutPublisher: %v", err)
	}
	if err := publisher.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	event := services.CheckoutEvent{
		EventID:      "01J0EVENT",
		Type:         services.CheckoutEventSessionCreated,
		Reference:    "01J0REF",
		SessionID:    "cs_test_1",
		PurchaseType: "payment",
		ItemCount:    2,
		AmountTotal:  3200,
		Currency:     "jpy",
		OccurredAt:   time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.PublishCheckoutEvent(ctx, event); err != nil {
		t.Fatalf("PublishCheckoutEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.CheckoutEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SessionID != event.SessionID || payload.AmountTotal != event.AmountTotal {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.CheckoutEventSessionCreated || attrs["reference"] != "01J0REF" || attrs["itemCount"] != "2" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
}

func TestPubSubCheckoutPublisherMarshalError(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	topic, err := client.CreateTopic(ctx, "checkout-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubCheckoutPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubCheckoutPublisher: %v", err)
	}
	publisher.marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }

	if _, err := publisher.PublishCheckoutEvent(ctx, services.CheckoutEvent{EventID: "x"}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestPubSubCheckoutPublisherPingMissingTopic(t *testing.T) {
	client, _ := newTestClient(t)
	publisher, err := NewPubSubCheckoutPublisher(client.Topic("missing"))
	if err != nil {
		t.Fatalf("NewPubSubCheckoutPublisher: %v", err)
	}
	if err := publisher.Ping(context.Background()); err == nil {
		t.Fatal("expected missing topic error")
	}
}

func TestNewPubSubCheckoutPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubCheckoutPublisher(nil); err == nil {
		t.Fatal("expected error without topic")
	}
}
