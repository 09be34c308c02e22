package fare

import (
	"fmt"
	"strings"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

// HopLoads counts, for every hop between consecutive stops, the spans that
// ride across it. loads[i] is the hop from stops[i] to stops[i+1].
func HopLoads(stops []models.Stop, spans []models.SegmentSpan) []int {
	if len(stops) < 2 {
		return nil
	}
	loads := make([]int, len(stops)-1)
	for _, sp := range spans {
		for i := range loads {
			if covers(sp, stops[i].Order) {
				loads[i]++
			}
		}
	}
	return loads
}

// CheckCapacity fails with ErrSegmentCapacityExceeded when any hop the
// requested span crosses is already carrying capacity riders.
func CheckCapacity(stops []models.Stop, spans []models.SegmentSpan, want models.SegmentSpan, capacity int) error {
	loads := HopLoads(stops, spans)
	var full []string
	for i, load := range loads {
		if !covers(want, stops[i].Order) {
			continue
		}
		if load >= capacity {
			full = append(full, stops[i].Name+" -> "+stops[i+1].Name)
		}
	}
	if len(full) == 0 {
		return nil
	}
	return domain.ConflictError{
		Resource: "segment",
		Msg:      fmt.Sprintf("no seats between %s", strings.Join(full, ", ")),
		Err:      domain.ErrSegmentCapacityExceeded,
	}
}

// covers reports whether span rides the hop that starts at stop order.
func covers(span models.SegmentSpan, order int) bool {
	return span.PickupOrder <= order && order < span.DropoffOrder
}
