package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-routerecorder/internal/db"
	"backend-routerecorder/internal/route"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errEmptyRoute = errors.New("route has no points")

// DraftStore persists finished routes for the post-processing stage that
// turns a recording into a post.
type DraftStore struct {
	db  db.Querier
	log zerolog.Logger
}

func NewDraftStore(q db.Querier, logger zerolog.Logger) *DraftStore {
	return &DraftStore{
		db:  q,
		log: logger.With().Str("component", "drafts").Logger(),
	}
}

func (s *DraftStore) Receive(ctx context.Context, h Handoff) error {
	draft, err := s.Save(ctx, h.Route)
	if errors.Is(err, errEmptyRoute) {
		s.log.Info().Msg("nothing recorded, no draft created")
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info().Str("draft_id", draft.ID).Int("points", draft.PointCount).Msg("route draft saved")
	return nil
}

func (s *DraftStore) Save(ctx context.Context, r route.Route) (Draft, error) {
	if len(r) == 0 {
		return Draft{}, errEmptyRoute
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return Draft{}, fmt.Errorf("encode route: %w", err)
	}

	draft := Draft{
		ID:         uuid.NewString(),
		PointCount: len(r),
		StartedAt:  time.UnixMilli(r[0].Time).UTC(),
		EndedAt:    time.UnixMilli(r[len(r)-1].Time).UTC(),
		Route:      payload,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO route_drafts (id, point_count, started_at, ended_at, route)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, draft.ID, draft.PointCount, draft.StartedAt, draft.EndedAt, draft.Route)
	if err := row.Scan(&draft.CreatedAt); err != nil {
		return Draft{}, fmt.Errorf("insert draft: %w", err)
	}
	return draft, nil
}

// Get loads a draft with its decoded route.
func (s *DraftStore) Get(ctx context.Context, id string) (Draft, route.Route, error) {
	var d Draft
	row := s.db.QueryRow(ctx, `
		SELECT id, point_count, started_at, ended_at, route, created_at
		FROM route_drafts WHERE id=$1
	`, id)
	if err := row.Scan(&d.ID, &d.PointCount, &d.StartedAt, &d.EndedAt, &d.Route, &d.CreatedAt); err != nil {
		return Draft{}, nil, err
	}

	var r route.Route
	if err := json.Unmarshal(d.Route, &r); err != nil {
		return Draft{}, nil, fmt.Errorf("decode draft route: %w", err)
	}
	return d, r, nil
}
