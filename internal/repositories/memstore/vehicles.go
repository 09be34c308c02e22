package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

func (v view) CreateVehicle(_ context.Context, veh *models.Vehicle) error {
	defer v.lock()()
	for _, other := range v.s.t.vehicles {
		if strings.EqualFold(other.Plate, veh.Plate) {
			return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("plate %s already registered", veh.Plate)}
		}
	}
	now := time.Now().UTC()
	if veh.Status == "" {
		veh.Status = models.VehicleAvailable
	}
	veh.ID = v.s.t.id()
	veh.CreatedAt, veh.UpdatedAt = now, now
	v.s.t.vehicles[veh.ID] = *veh
	return nil
}

func (v view) UpdateVehicle(_ context.Context, veh *models.Vehicle) error {
	defer v.lock()()
	cur, ok := v.s.t.vehicles[veh.ID]
	if !ok {
		return domain.NotFoundError{Resource: "vehicle"}
	}
	for id, other := range v.s.t.vehicles {
		if id != veh.ID && strings.EqualFold(other.Plate, veh.Plate) {
			return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("plate %s already registered", veh.Plate)}
		}
	}
	cur.Plate, cur.Type, cur.Capacity, cur.DriverID = veh.Plate, veh.Type, veh.Capacity, veh.DriverID
	cur.UpdatedAt = time.Now().UTC()
	v.s.t.vehicles[veh.ID] = cur
	veh.UpdatedAt = cur.UpdatedAt
	return nil
}

func (v view) ListVehicles(_ context.Context, operatorID int64) ([]models.Vehicle, error) {
	defer v.lock()()
	var out []models.Vehicle
	for _, veh := range v.s.t.vehicles {
		if veh.OperatorID == operatorID {
			out = append(out, veh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return out, nil
}

func (v view) GetVehicle(_ context.Context, id int64) (models.Vehicle, error) {
	defer v.lock()()
	veh, ok := v.s.t.vehicles[id]
	if !ok {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle"}
	}
	return veh, nil
}

func (v view) ClaimAvailableVehicle(_ context.Context, operatorID int64) (models.Vehicle, error) {
	defer v.lock()()
	var ids []int64
	for id, veh := range v.s.t.vehicles {
		if veh.OperatorID == operatorID && veh.Status == models.VehicleAvailable {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return models.Vehicle{}, domain.ConflictError{
			Resource: "vehicle",
			Msg:      fmt.Sprintf("operator %d has no available vehicle", operatorID),
			Err:      domain.ErrNoVehicleAvailable,
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	veh := v.s.t.vehicles[ids[0]]
	veh.Status = models.VehicleScheduled
	veh.UpdatedAt = time.Now().UTC()
	v.s.t.vehicles[veh.ID] = veh
	return veh, nil
}

func (v view) ClaimVehicle(ctx context.Context, id int64) (bool, error) {
	return v.SetVehicleStatus(ctx, id, models.VehicleScheduled, models.VehicleAvailable)
}

func (v view) SetVehicleStatus(_ context.Context, id int64, to models.VehicleStatus, from ...models.VehicleStatus) (bool, error) {
	defer v.lock()()
	return v.setVehicleStatus(id, to, from...), nil
}

func (v view) setVehicleStatus(id int64, to models.VehicleStatus, from ...models.VehicleStatus) bool {
	veh, ok := v.s.t.vehicles[id]
	if !ok {
		return false
	}
	if len(from) > 0 && !hasVehicleStatus(veh.Status, from) {
		return false
	}
	veh.Status = to
	veh.UpdatedAt = time.Now().UTC()
	v.s.t.vehicles[id] = veh
	return true
}

func (v view) ReleaseVehicle(_ context.Context, id, exceptScheduleID int64) (bool, error) {
	defer v.lock()()
	for _, s := range v.s.t.schedules {
		if s.VehicleID == id && s.ID != exceptScheduleID &&
			(s.Status == models.ScheduleScheduled || s.Status == models.ScheduleInTransit) {
			return false, nil
		}
	}
	return v.setVehicleStatus(id, models.VehicleAvailable, models.VehicleScheduled, models.VehicleInTransit), nil
}

func hasVehicleStatus(s models.VehicleStatus, set []models.VehicleStatus) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}
