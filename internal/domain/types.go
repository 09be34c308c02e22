package domain

// Roles known to the identity layer.
const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleAdmin     = "sacco_admin"
)

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	UserID     int64  `json:"userId"`
	Role       string `json:"role"`
	OperatorID int64  `json:"operatorId,omitempty"`
}

// IsAdminOf reports whether the caller administers operatorID.
func (rc RequestContext) IsAdminOf(operatorID int64) bool {
	return rc.Role == RoleAdmin && rc.OperatorID != 0 && rc.OperatorID == operatorID
}
