package services

import (
	"context"
	"fmt"
	"strings"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/fare"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

type RouteInput struct {
	Name             string        `json:"name"`
	Origin           string        `json:"origin"`
	Destination      string        `json:"destination"`
	DistanceKm       float64       `json:"distanceKm"`
	EstimatedMinutes int           `json:"estimatedMinutes"`
	Price            int64         `json:"price"`
	IsActive         *bool         `json:"isActive"`
	Stops            []models.Stop `json:"stops"`
}

type RouteService struct {
	Store repositories.Store
}

func (s RouteService) CreateRoute(ctx context.Context, rc domain.RequestContext, in RouteInput) (models.Route, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return models.Route{}, forbidden("only operator admins manage routes")
	}
	r, err := buildRoute(in)
	if err != nil {
		return models.Route{}, err
	}
	r.OperatorID = rc.OperatorID
	if err := s.Store.Routes().CreateRoute(ctx, &r); err != nil {
		return models.Route{}, domain.InternalError{Msg: "create route", Err: err}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "route", "created", fmt.Sprintf("route_id=%d stops=%d price=%d", r.ID, len(r.Stops), r.Price))
	return r, nil
}

// UpdateRoute replaces a route's fields and stops. Fares already written on
// bookings are not touched.
func (s RouteService) UpdateRoute(ctx context.Context, rc domain.RequestContext, id int64, in RouteInput) (models.Route, error) {
	cur, err := s.Store.Routes().GetRoute(ctx, id)
	if err != nil {
		return models.Route{}, err
	}
	if !rc.IsAdminOf(cur.OperatorID) {
		return models.Route{}, forbidden("route belongs to another operator")
	}
	r, err := buildRoute(in)
	if err != nil {
		return models.Route{}, err
	}
	r.ID = cur.ID
	r.OperatorID = cur.OperatorID
	if in.IsActive == nil {
		r.IsActive = cur.IsActive
	}
	if err := s.Store.Routes().UpdateRoute(ctx, &r); err != nil {
		if domain.IsNotFound(err) {
			return models.Route{}, err
		}
		return models.Route{}, domain.InternalError{Msg: "update route", Err: err}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "route", "updated", fmt.Sprintf("route_id=%d stops=%d price=%d", r.ID, len(r.Stops), r.Price))
	return r, nil
}

// ListRoutes returns the admin's routes, inactive ones included, without
// their stops.
func (s RouteService) ListRoutes(ctx context.Context, rc domain.RequestContext) ([]models.Route, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return nil, forbidden("only operator admins manage routes")
	}
	routes, err := s.Store.Routes().ListRoutes(ctx, rc.OperatorID)
	if err != nil {
		return nil, domain.InternalError{Msg: "list routes", Err: err}
	}
	return nonNil(routes), nil
}

// DeleteRoute deactivates a route. It stays readable so existing schedules
// and tickets keep their route, but nothing new can be scheduled on it.
func (s RouteService) DeleteRoute(ctx context.Context, rc domain.RequestContext, id int64) error {
	cur, err := s.Store.Routes().GetRoute(ctx, id)
	if err != nil {
		return err
	}
	if !rc.IsAdminOf(cur.OperatorID) {
		return forbidden("route belongs to another operator")
	}
	changed, err := s.Store.Routes().DeactivateRoute(ctx, id)
	if err != nil {
		return domain.InternalError{Msg: "delete route", Err: err}
	}
	if changed {
		utils.LogEvent(utils.RequestIDFrom(ctx), "route", "deactivated", fmt.Sprintf("route_id=%d", id))
	}
	return nil
}

func (s RouteService) GetRoute(ctx context.Context, id int64) (models.Route, error) {
	return s.Store.Routes().GetRoute(ctx, id)
}

// Quote prices a segment without holding anything.
func (s RouteService) Quote(ctx context.Context, routeID int64, pickup, dropoff string) (fare.Quote, error) {
	r, err := s.Store.Routes().GetRoute(ctx, routeID)
	if err != nil {
		return fare.Quote{}, err
	}
	return fare.Price(r.Stops, pickup, dropoff)
}

func buildRoute(in RouteInput) (models.Route, error) {
	r := models.Route{
		Name:             utils.NormalizeSpace(in.Name),
		Origin:           utils.NormalizeSpace(in.Origin),
		Destination:      utils.NormalizeSpace(in.Destination),
		DistanceKm:       in.DistanceKm,
		EstimatedMinutes: in.EstimatedMinutes,
		Price:            in.Price,
		IsActive:         true,
		Stops:            fare.NormalizeStops(in.Stops),
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	switch {
	case r.Origin == "":
		return models.Route{}, domain.ValidationError{Field: "origin", Msg: "required", Err: domain.ErrInvalidRoute}
	case r.Destination == "":
		return models.Route{}, domain.ValidationError{Field: "destination", Msg: "required", Err: domain.ErrInvalidRoute}
	case strings.EqualFold(r.Origin, r.Destination):
		return models.Route{}, domain.ValidationError{Field: "destination", Msg: "must differ from origin", Err: domain.ErrInvalidRoute}
	case r.EstimatedMinutes < 0:
		return models.Route{}, domain.ValidationError{Field: "estimatedMinutes", Msg: "must not be negative", Err: domain.ErrInvalidRoute}
	}
	if r.Name == "" {
		r.Name = r.Origin + " - " + r.Destination
	}
	if err := fare.ValidateStops(r.Price, r.Stops); err != nil {
		return models.Route{}, err
	}
	return r, nil
}
