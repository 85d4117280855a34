package domain

type Role string

const (
	RoleClient   Role = "client"
	RolePreparer Role = "preparer"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of an inbound operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsStaff() bool {
	return a.Role == RolePreparer || a.Role == RoleAdmin
}

// CanView reports read access: the owning client, or any preparer/admin.
func (a Actor) CanView(r *TaxReturn) bool {
	if r == nil || a.UserID == "" {
		return false
	}
	if a.IsStaff() {
		return true
	}
	return a.Role == RoleClient && r.ClientID == a.UserID
}

// CanCancel reports whether the actor may cancel AI processing. Clients never
// can; preparers only when unassigned or assigned to them.
func (a Actor) CanCancel(r *TaxReturn) bool {
	if r == nil || a.UserID == "" {
		return false
	}
	switch a.Role {
	case RoleAdmin:
		return true
	case RolePreparer:
		return r.PreparerID == nil || *r.PreparerID == a.UserID
	default:
		return false
	}
}

// CanTrigger reports whether the actor may start a processing run.
func (a Actor) CanTrigger(r *TaxReturn) bool {
	if r == nil || a.UserID == "" {
		return false
	}
	if a.Role == RoleClient {
		return r.ClientID == a.UserID
	}
	return a.CanCancel(r)
}
