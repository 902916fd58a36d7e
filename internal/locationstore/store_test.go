package locationstore

import (
	"context"
	"sync"
	"testing"

	"backend-routerecorder/internal/route"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "", zerolog.Nop()), server
}

func TestReadEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	r, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if r == nil || len(r) != 0 {
		t.Fatalf("expected empty route, got %v", r)
	}
	if store.Key() != DefaultKey {
		t.Fatalf("expected default key")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	want := route.Route{
		{Latitude: 53.5, Longitude: -1.6, Time: 1000},
		{Latitude: 53.6, Longitude: -1.7, Time: 1000},
		{Latitude: -33.9, Longitude: 151.2, Time: 2500},
	}
	if err := store.Write(ctx, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestPersistedFormat(t *testing.T) {
	store, server := newTestStore(t)
	if _, err := store.Append(context.Background(), route.LocationPoint{Latitude: 1.5, Longitude: 2.5, Time: 100}); err != nil {
		t.Fatalf("append: %v", err)
	}
	raw, err := server.Get(DefaultKey)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if raw != `[{"latitude":1.5,"longitude":2.5,"time":100}]` {
		t.Fatalf("unexpected persisted format: %s", raw)
	}
}

func TestClearIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if err := store.Write(ctx, route.Route{{Latitude: 1, Longitude: 1, Time: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	r, err := store.Read(ctx)
	if err != nil || len(r) != 0 {
		t.Fatalf("expected empty after clear: %v %v", r, err)
	}
}

func TestAppendScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res, err := store.Append(ctx, route.LocationPoint{Latitude: 1, Longitude: 1, Time: 100})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Length != 1 || res.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	res, err = store.Append(ctx, route.LocationPoint{Latitude: 2, Longitude: 2, Time: 200})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Length != 2 {
		t.Fatalf("expected length 2, got %d", res.Length)
	}

	got, _ := store.Read(ctx)
	want := route.Route{
		{Latitude: 1, Longitude: 1, Time: 100},
		{Latitude: 2, Longitude: 2, Time: 200},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	coords := route.Project(got)
	if coords[0] != (route.Coordinate{Latitude: 1, Longitude: 1}) || coords[1] != (route.Coordinate{Latitude: 2, Longitude: 2}) {
		t.Fatalf("unexpected projection: %+v", coords)
	}
}

func TestAppendIncrementsLength(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		before, _ := store.Read(ctx)
		if _, err := store.Append(ctx, route.LocationPoint{Latitude: float64(i), Longitude: 0, Time: int64(i * 10)}); err != nil {
			t.Fatalf("append: %v", err)
		}
		after, _ := store.Read(ctx)
		if len(after) != len(before)+1 {
			t.Fatalf("expected length %d, got %d", len(before)+1, len(after))
		}
	}
}

func TestAppendBatchKeepsOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	batch := []route.LocationPoint{
		{Latitude: 1, Longitude: 1, Time: 10},
		{Latitude: 2, Longitude: 2, Time: 20},
		{Latitude: 3, Longitude: 3, Time: 30},
	}
	res, err := store.Append(ctx, batch...)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Accepted != 3 || res.Dropped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	got, _ := store.Read(ctx)
	for i := range batch {
		if got[i] != batch[i] {
			t.Fatalf("point %d out of order", i)
		}
	}
}

func TestAppendDropsRedeliveredBatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	batch := []route.LocationPoint{
		{Latitude: 1, Longitude: 1, Time: 10},
		{Latitude: 2, Longitude: 2, Time: 20},
	}
	if _, err := store.Append(ctx, batch...); err != nil {
		t.Fatalf("append: %v", err)
	}
	res, err := store.Append(ctx, batch...)
	if err != nil {
		t.Fatalf("redelivery append: %v", err)
	}
	if res.Accepted != 0 || res.Dropped != 2 || res.Length != 2 {
		t.Fatalf("expected redelivery to be dropped: %+v", res)
	}
}

func TestAppendInsertsLateFixChronologically(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Append(ctx,
		route.LocationPoint{Latitude: 1, Longitude: 1, Time: 100},
		route.LocationPoint{Latitude: 3, Longitude: 3, Time: 300},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, route.LocationPoint{Latitude: 2, Longitude: 2, Time: 200}); err != nil {
		t.Fatalf("late append: %v", err)
	}
	got, _ := store.Read(ctx)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Time < got[i-1].Time {
			t.Fatalf("route not chronological: %+v", got)
		}
	}
	if got[1].Time != 200 {
		t.Fatalf("expected late fix in the middle, got %+v", got)
	}
}

func TestAppendAcceptsEqualTimeDifferentCoords(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	res, err := store.Append(ctx,
		route.LocationPoint{Latitude: 1, Longitude: 1, Time: 100},
		route.LocationPoint{Latitude: 1.1, Longitude: 1, Time: 100},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Accepted != 2 {
		t.Fatalf("expected both equal-time fixes, got %+v", res)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := store.Append(ctx, route.LocationPoint{Latitude: 1, Longitude: 1, Time: 100}); err != nil {
			t.Errorf("append a: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := store.Append(ctx, route.LocationPoint{Latitude: 2, Longitude: 2, Time: 200}); err != nil {
			t.Errorf("append b: %v", err)
		}
	}()
	wg.Wait()

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Time != 100 || got[1].Time != 200 {
		t.Fatalf("expected both points in time order, got %+v", got)
	}
}

func TestConcurrentAppendsAcrossStores(t *testing.T) {
	server := miniredis.RunT(t)
	const writers = 4
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store := New(client, "shared", zerolog.Nop())

		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				p := route.LocationPoint{Latitude: float64(w), Longitude: float64(i), Time: int64(w*perWriter + i + 1)}
				if _, err := store.Append(context.Background(), p); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	got, err := New(client, "shared", zerolog.Nop()).Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != writers*perWriter {
		t.Fatalf("expected %d points, got %d", writers*perWriter, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Time < got[i-1].Time {
			t.Fatalf("route not chronological at %d", i)
		}
	}
}

func TestReadCorruptValue(t *testing.T) {
	store, server := newTestStore(t)
	if err := server.Set(DefaultKey, "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Read(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := store.Append(context.Background(), route.LocationPoint{Latitude: 1, Longitude: 1, Time: 1}); err == nil {
		t.Fatalf("expected append to fail on corrupt value")
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, server := newTestStore(t)
	server.Close()
	ctx := context.Background()
	if _, err := store.Read(ctx); err == nil {
		t.Fatalf("expected read error")
	}
	if err := store.Clear(ctx); err == nil {
		t.Fatalf("expected clear error")
	}
	if err := store.Write(ctx, route.Route{}); err == nil {
		t.Fatalf("expected write error")
	}
}
