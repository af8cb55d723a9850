package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ReadMarkerStore holds the fast-path last-read marker per (user, channel).
// It is a cache: entries may be evicted at any time and callers must fall
// back to the durable store on a miss.
type ReadMarkerStore struct {
	rdb redis.UniversalClient
}

func NewReadMarkerStore(rdb redis.UniversalClient) *ReadMarkerStore {
	return &ReadMarkerStore{rdb: rdb}
}

func markerKey(userID string, channelID int64) string {
	return fmt.Sprintf("im:readmark:%s:%d", userID, channelID)
}

// Set writes the marker unconditionally (last-write-wins).
func (s *ReadMarkerStore) Set(ctx context.Context, userID string, channelID int64, timestampID string) error {
	return s.rdb.Set(ctx, markerKey(userID, channelID), timestampID, 0).Err()
}

// Get returns the marker value and whether it exists.
func (s *ReadMarkerStore) Get(ctx context.Context, userID string, channelID int64) (string, bool, error) {
	v, err := s.rdb.Get(ctx, markerKey(userID, channelID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *ReadMarkerStore) Delete(ctx context.Context, userID string, channelID int64) error {
	return s.rdb.Del(ctx, markerKey(userID, channelID)).Err()
}
