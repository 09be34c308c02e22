// Package fare prices pickup/dropoff segments over a route's ordered stops
// and checks per-hop seat load.
package fare

import (
	"fmt"
	"strings"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

// PlatformFee is the flat amount added to every segment fare.
const PlatformFee int64 = 2

// Quote is the priced result of a pickup/dropoff pair.
type Quote struct {
	Pickup         models.Stop `json:"pickup"`
	Dropoff        models.Stop `json:"dropoff"`
	SegmentFare    int64       `json:"segmentFare"`
	PlatformFee    int64       `json:"platformFee"`
	OperatorAmount int64       `json:"operatorAmount"`
	Total          int64       `json:"total"`
}

// NormalizeStops trims names and assigns 1-based orders in slice order.
func NormalizeStops(stops []models.Stop) []models.Stop {
	out := make([]models.Stop, len(stops))
	for i, s := range stops {
		s.Name = strings.TrimSpace(s.Name)
		s.Order = i + 1
		out[i] = s
	}
	return out
}

// ValidateStops enforces the route invariants: at least two stops, unique
// names, fares starting at zero or above and never decreasing, and the last
// stop priced at the route's full fare.
func ValidateStops(price int64, stops []models.Stop) error {
	if price <= 0 {
		return invalidRoute("price", "must be greater than zero")
	}
	if len(stops) < 2 {
		return invalidRoute("stops", "at least two stops are required")
	}
	seen := make(map[string]struct{}, len(stops))
	for i, s := range stops {
		if s.Name == "" {
			return invalidRoute("stops", fmt.Sprintf("stop %d has no name", i+1))
		}
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return invalidRoute("stops", fmt.Sprintf("duplicate stop %q", s.Name))
		}
		seen[key] = struct{}{}
		if s.Order != i+1 {
			return invalidRoute("stops", fmt.Sprintf("stop %q has order %d, want %d", s.Name, s.Order, i+1))
		}
		if s.FareFromStart < 0 {
			return invalidRoute("stops", fmt.Sprintf("stop %q has a negative fare", s.Name))
		}
		if i > 0 && s.FareFromStart < stops[i-1].FareFromStart {
			return invalidRoute("stops", fmt.Sprintf("fare decreases at %q", s.Name))
		}
	}
	if last := stops[len(stops)-1]; last.FareFromStart != price {
		return invalidRoute("stops", fmt.Sprintf("last stop fare %d does not match route price %d", last.FareFromStart, price))
	}
	return nil
}

// Price quotes the pickup -> dropoff segment. Unknown stops and pairs that do
// not move forward along the route fail with ErrInvalidSegment.
func Price(stops []models.Stop, pickup, dropoff string) (Quote, error) {
	from, ok := findStop(stops, pickup)
	if !ok {
		return Quote{}, invalidSegment("pickup", fmt.Sprintf("unknown stop %q", pickup))
	}
	to, ok := findStop(stops, dropoff)
	if !ok {
		return Quote{}, invalidSegment("dropoff", fmt.Sprintf("unknown stop %q", dropoff))
	}
	if from.Order >= to.Order {
		return Quote{}, invalidSegment("dropoff", "dropoff must come after pickup")
	}

	segment := to.FareFromStart - from.FareFromStart
	if segment < 0 {
		return Quote{}, invalidSegment("dropoff", "segment fare is negative")
	}
	return Quote{
		Pickup:         from,
		Dropoff:        to,
		SegmentFare:    segment,
		PlatformFee:    PlatformFee,
		OperatorAmount: segment,
		Total:          segment + PlatformFee,
	}, nil
}

func findStop(stops []models.Stop, name string) (models.Stop, bool) {
	name = strings.TrimSpace(name)
	for _, s := range stops {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range stops {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return models.Stop{}, false
}

func invalidRoute(field, msg string) error {
	return domain.ValidationError{Field: field, Msg: msg, Err: domain.ErrInvalidRoute}
}

func invalidSegment(field, msg string) error {
	return domain.ValidationError{Field: field, Msg: msg, Err: domain.ErrInvalidSegment}
}
