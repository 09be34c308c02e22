package services

import (
	"context"
	"fmt"
	"strings"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

type VehicleInput struct {
	Plate    string             `json:"plate"`
	Type     models.VehicleType `json:"type"`
	Capacity int                `json:"capacity"`
	DriverID *int64             `json:"driverId"`
}

// VehicleUpdate carries the editable vehicle fields. Status may only move a
// vehicle between available and maintenance.
type VehicleUpdate struct {
	VehicleInput
	Status models.VehicleStatus `json:"status"`
}

type VehicleService struct {
	Store repositories.Store
}

func (s VehicleService) CreateVehicle(ctx context.Context, rc domain.RequestContext, in VehicleInput) (models.Vehicle, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return models.Vehicle{}, forbidden("only operator admins register vehicles")
	}

	plate, typ, capacity, err := validateVehicle(in)
	if err != nil {
		return models.Vehicle{}, err
	}

	v := models.Vehicle{
		OperatorID: rc.OperatorID,
		Plate:      plate,
		Type:       typ,
		Capacity:   capacity,
		Status:     models.VehicleAvailable,
		DriverID:   in.DriverID,
	}
	if err := s.Store.Vehicles().CreateVehicle(ctx, &v); err != nil {
		if domain.IsConflict(err) {
			return models.Vehicle{}, err
		}
		return models.Vehicle{}, domain.InternalError{Msg: "create vehicle", Err: err}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "vehicle", "created", fmt.Sprintf("vehicle_id=%d plate=%s capacity=%d", v.ID, v.Plate, v.Capacity))
	return v, nil
}

func (s VehicleService) GetVehicle(ctx context.Context, rc domain.RequestContext, id int64) (models.Vehicle, error) {
	v, err := s.Store.Vehicles().GetVehicle(ctx, id)
	if err != nil {
		return models.Vehicle{}, err
	}
	if rc.OperatorID != v.OperatorID {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle"}
	}
	return v, nil
}

func (s VehicleService) ListVehicles(ctx context.Context, rc domain.RequestContext) ([]models.Vehicle, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return nil, forbidden("only operator admins list vehicles")
	}
	out, err := s.Store.Vehicles().ListVehicles(ctx, rc.OperatorID)
	if err != nil {
		return nil, domain.InternalError{Msg: "list vehicles", Err: err}
	}
	return nonNil(out), nil
}

// UpdateVehicle edits a vehicle and optionally takes it into or out of
// maintenance. A vehicle serving a schedule cannot go to maintenance.
func (s VehicleService) UpdateVehicle(ctx context.Context, rc domain.RequestContext, id int64, in VehicleUpdate) (models.Vehicle, error) {
	cur, err := s.Store.Vehicles().GetVehicle(ctx, id)
	if err != nil {
		return models.Vehicle{}, err
	}
	if !rc.IsAdminOf(cur.OperatorID) {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle"}
	}
	plate, typ, capacity, err := validateVehicle(in.VehicleInput)
	if err != nil {
		return models.Vehicle{}, err
	}
	status := models.VehicleStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	var from models.VehicleStatus
	switch status {
	case "", cur.Status:
		status = ""
	case models.VehicleMaintenance:
		from = models.VehicleAvailable
	case models.VehicleAvailable:
		from = models.VehicleMaintenance
	default:
		return models.Vehicle{}, domain.ValidationError{Field: "status", Msg: "must be available or maintenance"}
	}

	v := cur
	v.Plate, v.Type, v.Capacity = plate, typ, capacity
	if in.DriverID != nil {
		v.DriverID = in.DriverID
	}
	err = s.Store.InTx(ctx, func(r repositories.Repos) error {
		if status != "" {
			ok, err := r.Vehicles().SetVehicleStatus(ctx, id, status, from)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("vehicle %s is %s", cur.Plate, cur.Status)}
			}
		}
		return r.Vehicles().UpdateVehicle(ctx, &v)
	})
	if err != nil {
		if domain.IsConflict(err) || domain.IsNotFound(err) {
			return models.Vehicle{}, err
		}
		return models.Vehicle{}, domain.InternalError{Msg: "update vehicle", Err: err}
	}
	if status != "" {
		v.Status = status
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "vehicle", "updated", fmt.Sprintf("vehicle_id=%d plate=%s status=%s", v.ID, v.Plate, v.Status))
	return v, nil
}

func validateVehicle(in VehicleInput) (string, models.VehicleType, int, error) {
	plate := strings.ToUpper(utils.NormalizeSpace(in.Plate))
	if plate == "" {
		return "", "", 0, domain.ValidationError{Field: "plate", Msg: "required"}
	}
	typ := models.VehicleType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	switch typ {
	case "":
		typ = models.VehicleMatatu
	case models.VehicleMatatu, models.VehicleBus:
	default:
		return "", "", 0, domain.ValidationError{Field: "type", Msg: fmt.Sprintf("unknown vehicle type %q", in.Type)}
	}
	capacity := in.Capacity
	if capacity == 0 {
		capacity = typ.DefaultCapacity()
	}
	if capacity < models.MinVehicleCapacity || capacity > models.MaxVehicleCapacity {
		return "", "", 0, domain.ValidationError{
			Field: "capacity",
			Msg:   fmt.Sprintf("must be between %d and %d", models.MinVehicleCapacity, models.MaxVehicleCapacity),
		}
	}
	return plate, typ, capacity, nil
}
