package memstore

import (
	"context"
	"sort"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

func copyStops(in []models.Stop) []models.Stop {
	if in == nil {
		return nil
	}
	out := make([]models.Stop, len(in))
	copy(out, in)
	return out
}

func (v view) CreateRoute(_ context.Context, r *models.Route) error {
	defer v.lock()()
	now := time.Now().UTC()
	r.ID = v.s.t.id()
	r.CreatedAt, r.UpdatedAt = now, now
	stored := *r
	stored.Stops = copyStops(r.Stops)
	v.s.t.routes[r.ID] = stored
	return nil
}

func (v view) UpdateRoute(_ context.Context, r *models.Route) error {
	defer v.lock()()
	cur, ok := v.s.t.routes[r.ID]
	if !ok {
		return domain.NotFoundError{Resource: "route"}
	}
	r.CreatedAt = cur.CreatedAt
	r.OperatorID = cur.OperatorID
	r.UpdatedAt = time.Now().UTC()
	stored := *r
	stored.Stops = copyStops(r.Stops)
	v.s.t.routes[r.ID] = stored
	return nil
}

func (v view) GetRoute(_ context.Context, id int64) (models.Route, error) {
	defer v.lock()()
	r, ok := v.s.t.routes[id]
	if !ok {
		return models.Route{}, domain.NotFoundError{Resource: "route"}
	}
	r.Stops = copyStops(r.Stops)
	return r, nil
}

func (v view) ListRoutes(_ context.Context, operatorID int64) ([]models.Route, error) {
	defer v.lock()()
	var out []models.Route
	for _, r := range v.s.t.routes {
		if r.OperatorID != operatorID {
			continue
		}
		r.Stops = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) DeactivateRoute(_ context.Context, id int64) (bool, error) {
	defer v.lock()()
	r, ok := v.s.t.routes[id]
	if !ok || !r.IsActive {
		return false, nil
	}
	r.IsActive = false
	r.UpdatedAt = time.Now().UTC()
	v.s.t.routes[id] = r
	return true, nil
}
