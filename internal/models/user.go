package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleResident   Role = "resident"
)

// Actions checked by the analytics routes.
const (
	ActionViewStatistics  = "view_statistics"
	ActionViewTechnicians = "view_technicians"
	ActionViewPredictions = "view_predictions"
	ActionViewInvoices    = "view_invoices"
	ActionViewHealth      = "view_health"
	ActionViewOverview    = "view_overview"
	ActionViewGlobal      = "view_global"
)

// Claims represents JWT claims issued by the identity provider
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	BuildingID string `json:"building_id,omitempty"`
	Exp        int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleTechnician, RoleResident:
		return true
	default:
		return false
	}
}

// Can checks if the role has permission for a specific action
func (r Role) Can(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionViewGlobal
	case RoleTechnician:
		return action == ActionViewStatistics || action == ActionViewPredictions ||
			action == ActionViewHealth
	case RoleResident:
		return action == ActionViewStatistics || action == ActionViewHealth
	default:
		return false
	}
}
