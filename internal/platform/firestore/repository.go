package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed helpers over one Firestore collection.
type Collection[T any] struct {
	provider *Provider
	name     string
	decode   Decoder[T]
}

// NewCollection binds a typed helper to the named collection. A nil decoder uses DataTo.
func NewCollection[T any](provider *Provider, name string, decode Decoder[T]) *Collection[T] {
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name), decode: decode}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Set upserts value under the document id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.collection(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s.set: document id is required", c.name)
	}
	if _, err := ref.Doc(id).Set(ctx, value); err != nil {
		return WrapError(c.name+".set", err)
	}
	return nil
}

// Get fetches one document by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.collection(ctx)
	if err != nil {
		return Document[T]{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Document[T]{}, fmt.Errorf("%s.get: document id is required", c.name)
	}
	snap, err := ref.Doc(id).Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.name+".get", err)
	}
	return c.document(snap)
}

// Query runs the (optionally customised) collection query and decodes every document in order.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	ref, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.name+".query", err)
		}
		doc, err := c.document(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

func (c *Collection[T]) document(snap *firestore.DocumentSnapshot) (Document[T], error) {
	data, err := c.decode(snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode document %s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, ErrNotConfigured
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}
