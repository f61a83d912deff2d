package marketdata

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"mss-enginev1/internal/model"
)

// Feed consumes closed bars from a Redis Stream and delivers them in order.
// An upstream collector (broker bridge, data vendor adapter) is expected to
// XADD one JSON-encoded bar per entry under the "data" field.
type Feed struct {
	client *goredis.Client
	stream string
	lastID string
}

// NewFeed creates a bar feed over an existing Redis client.
func NewFeed(client *goredis.Client, stream string) *Feed {
	return &Feed{client: client, stream: stream, lastID: "$"}
}

// Run reads bars from the stream into out until ctx is cancelled. Malformed
// entries are skipped so one bad message cannot stall the feed.
func (f *Feed) Run(ctx context.Context, out chan<- model.Bar) error {
	log.Printf("[feed] consuming bars from stream %s", f.stream)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := f.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{f.stream, f.lastID},
			Count:   100,
			Block:   2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[feed] xread error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				f.lastID = msg.ID
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var bar model.Bar
				if err := json.Unmarshal([]byte(data), &bar); err != nil {
					log.Printf("[feed] unmarshal bar: %v", err)
					continue
				}
				select {
				case out <- bar:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
