package message

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrUniqueSeq = errors.New("unique (channel, seq) violated")

// memDB is the in-memory DB used by tests and local runs.
type memDB struct {
	mu       sync.RWMutex
	channels map[int64][]string          // channel -> member user ids
	bySeq    map[int64]map[int64]*Message // channel -> seq -> msg
	insErr   error
}

func NewMemDB() *memDB {
	return &memDB{
		channels: make(map[int64][]string),
		bySeq:    make(map[int64]map[int64]*Message),
	}
}

// AddChannel registers a channel with its members.
func (db *memDB) AddChannel(channelID int64, members ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.channels[channelID] = members
}

// FailInserts makes InsertMessage return err (durability-outage simulation).
func (db *memDB) FailInserts(err error) {
	db.mu.Lock()
	db.insErr = err
	db.mu.Unlock()
}

func (db *memDB) ChannelExists(_ context.Context, channelID int64) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.channels[channelID]
	return ok, nil
}

func (db *memDB) ChannelMembers(_ context.Context, channelID int64) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.channels[channelID]...), nil
}

func (db *memDB) InsertMessage(_ context.Context, m *Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.insErr != nil {
		return db.insErr
	}
	if _, ok := db.bySeq[m.ChannelID]; !ok {
		db.bySeq[m.ChannelID] = make(map[int64]*Message)
	}
	if _, ok := db.bySeq[m.ChannelID][m.Seq]; ok {
		return ErrUniqueSeq
	}
	cp := *m
	db.bySeq[m.ChannelID][m.Seq] = &cp
	return nil
}

func (db *memDB) MessagesAfter(_ context.Context, channelID int64, afterSeq int64, limit int) ([]*Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if limit <= 0 {
		limit = 200
	}
	var out []*Message
	for s, m := range db.bySeq[channelID] {
		if s > afterSeq {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (db *memDB) QueryMaxSeq(_ context.Context, channelID int64) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var max int64
	for s := range db.bySeq[channelID] {
		if s > max {
			max = s
		}
	}
	return max, nil
}
