// Package objectstore mirrors finished audio into a NATS JetStream object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const audioContentType = "audio/wav"

// ErrObjectNotFound indicates the key is not present in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Bucket implements core.ObjectStore on a JetStream object store.
type Bucket struct {
	name  string
	store nats.ObjectStore
}

// Open creates the bucket or binds to it if it already exists.
func Open(jetstreamContext nats.JetStreamContext, bucketName string) (*Bucket, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Synthesized audio for " + bucketName,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &Bucket{name: bucketName, store: store}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Upload stores data under key, replacing any previous object.
func (b *Bucket) Upload(_ context.Context, key string, data []byte) error {
	meta := &nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{audioContentType}},
	}

	_, err := b.store.Put(meta, bytes.NewReader(data))
	if err != nil {
		return b.wrap("put", key, err)
	}

	return nil
}

// Delete removes key from the bucket. Missing keys report ErrObjectNotFound.
func (b *Bucket) Delete(_ context.Context, key string) error {
	err := b.store.Delete(key)
	if err != nil {
		return b.wrap("delete", key, err)
	}

	return nil
}

func (b *Bucket) wrap(operation, key string, err error) error {
	if errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("%w: '%s' in bucket '%s'", ErrObjectNotFound, key, b.name)
	}

	return fmt.Errorf("failed to %s object '%s' in bucket '%s': %w", operation, key, b.name, err)
}
