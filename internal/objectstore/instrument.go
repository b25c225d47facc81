package objectstore

import (
	"context"
	"time"
)

// Observer receives telemetry for store operations.
type Observer interface {
	RecordPut(duration time.Duration, sizeBytes int, err error)
	RecordGet(duration time.Duration, err error)
	RecordDelete(duration time.Duration, err error)
}

type instrumented struct {
	next Store
	obs  Observer
}

// Instrument wraps s so every call is reported to obs. A nil obs returns s.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{next: s, obs: obs}
}

func (i *instrumented) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	start := time.Now()
	err := i.next.Put(ctx, bucket, key, data, contentType)
	i.obs.RecordPut(time.Since(start), len(data), err)
	return err
}

func (i *instrumented) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.next.Get(ctx, bucket, key)
	i.obs.RecordGet(time.Since(start), err)
	return data, err
}

func (i *instrumented) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, bucket, key)
	i.obs.RecordDelete(time.Since(start), err)
	return err
}
