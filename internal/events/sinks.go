package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"workbench/internal/storage"
)

// StoreSink appends events to the session/audit store.
type StoreSink struct {
	Store *storage.Store
}

func (s *StoreSink) Emit(ctx context.Context, ev StageEvent) error {
	meta := ""
	if len(ev.Meta) > 0 {
		b, err := json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("marshal event meta: %w", err)
		}
		meta = string(b)
	}
	return s.Store.AppendStageEvent(ctx, storage.StageEventRecord{
		ID:        ev.ID,
		RequestID: ev.RequestID,
		Stage:     ev.Stage,
		Message:   ev.Message,
		MetaJSON:  meta,
	})
}

// StreamSink mirrors events onto per-request redis streams so other
// processes can follow progress. Streams expire after TTL.
type StreamSink struct {
	Redis  *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s *StreamSink) Emit(ctx context.Context, ev StageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stage event: %w", err)
	}

	key := fmt.Sprintf("%s:%s", s.Prefix, ev.RequestID)
	if err := s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{"payload": payload},
	}).Err(); err != nil {
		return fmt.Errorf("xadd stage event: %w", err)
	}
	if s.TTL > 0 {
		if err := s.Redis.Expire(ctx, key, s.TTL).Err(); err != nil {
			return fmt.Errorf("expire stage event stream: %w", err)
		}
	}
	return nil
}
