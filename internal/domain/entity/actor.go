package entity

// Role is a user's global role
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleLead       Role = "lead"
	RoleManager    Role = "manager"
	RoleManagement Role = "management"
	RoleBilling    Role = "billing"
)

var validRoles = map[Role]bool{
	RoleEmployee:   true,
	RoleLead:       true,
	RoleManager:    true,
	RoleManagement: true,
	RoleBilling:    true,
}

// IsValid returns true for known roles
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// ProjectRoleManager is the project-scoped role that carries approval authority
const ProjectRoleManager = "manager"

// BillingSystemActorID identifies the billing process in history records
const BillingSystemActorID = "system:billing"

// Actor is the identity an operation is performed as.
// Every core operation receives it explicitly.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// BillingActor returns the actor the billing process runs as
func BillingActor() Actor {
	return Actor{ID: BillingSystemActorID, Role: RoleBilling}
}

// User is a directory record: global role and direct manager
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ManagerID string `json:"manager_id,omitempty"`
}
