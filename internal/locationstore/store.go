package locationstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"backend-routerecorder/internal/route"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultKey = "locations"

	maxTxRetries = 32
)

// ErrContention is returned when another writer kept changing the key for
// every optimistic transaction attempt.
var ErrContention = errors.New("location store: too much write contention")

// AppendResult reports what an Append did with its input.
type AppendResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
	Length   int `json:"length"`
}

// Store keeps the current session's route under a single Redis key as a
// JSON array. Every mutation goes through one writer: a process-local
// mutex, plus WATCH/MULTI so writers in other processes cannot interleave
// a read-modify-write either.
type Store struct {
	rdb *redis.Client
	key string
	log zerolog.Logger
	mu  sync.Mutex
}

func New(rdb *redis.Client, key string, logger zerolog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		rdb: rdb,
		key: key,
		log: logger.With().Str("component", "storage").Str("key", key).Logger(),
	}
}

func (s *Store) Key() string {
	return s.key
}

// Read returns the persisted route, or an empty one if nothing is stored.
func (s *Store) Read(ctx context.Context) (route.Route, error) {
	return readRoute(ctx, s.rdb, s.key)
}

// Write replaces the whole persisted route.
func (s *Store) Write(ctx context.Context, r route.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := encode(r)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("write locations: %w", err)
	}
	return nil
}

// Clear removes the persisted route. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear locations: %w", err)
	}
	return nil
}

// Append adds points in batch order. A fix older than the newest stored
// one is inserted at its chronological position; an exact repeat of a
// stored fix (same time and coordinates) is dropped as a redelivery.
func (s *Store) Append(ctx context.Context, points ...route.LocationPoint) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result AppendResult
	txf := func(tx *redis.Tx) error {
		current, err := readRoute(ctx, tx, s.key)
		if err != nil {
			return err
		}

		next, dropped := merge(current, points)
		result = AppendResult{
			Accepted: len(next) - len(current),
			Dropped:  dropped,
			Length:   len(next),
		}
		if result.Accepted == 0 {
			return nil
		}

		payload, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug().Int("attempt", attempt+1).Msg("append lost optimistic lock, retrying")
			continue
		}
		if err != nil {
			return AppendResult{}, fmt.Errorf("append locations: %w", err)
		}
		s.log.Debug().
			Int("accepted", result.Accepted).
			Int("dropped", result.Dropped).
			Msgf("added location - %d stored locations", result.Length)
		return result, nil
	}
	return AppendResult{}, ErrContention
}

func merge(current route.Route, points []route.LocationPoint) (route.Route, int) {
	next := make(route.Route, len(current), len(current)+len(points))
	copy(next, current)

	dropped := 0
	for _, p := range points {
		idx := sort.Search(len(next), func(i int) bool { return next[i].Time > p.Time })
		if containsAt(next, idx, p) {
			dropped++
			continue
		}
		if idx == len(next) {
			next = append(next, p)
			continue
		}
		next = append(next, route.LocationPoint{})
		copy(next[idx+1:], next[idx:])
		next[idx] = p
	}
	return next, dropped
}

// containsAt reports whether p already sits in the run of equal-time
// points ending just before idx.
func containsAt(r route.Route, idx int, p route.LocationPoint) bool {
	for i := idx - 1; i >= 0 && r[i].Time == p.Time; i-- {
		if r[i] == p {
			return true
		}
	}
	return false
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRoute(ctx context.Context, g getter, key string) (route.Route, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return route.Route{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}

	var r route.Route
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	if r == nil {
		r = route.Route{}
	}
	return r, nil
}

func encode(r route.Route) ([]byte, error) {
	if r == nil {
		r = route.Route{}
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode locations: %w", err)
	}
	return payload, nil
}
