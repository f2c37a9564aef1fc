package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	// ActionRead covers the admin listings (contacts, unpublished charges).
	ActionRead Action = "read"
	// ActionWrite covers create, update and delete of directory content and charges.
	ActionWrite Action = "write"
	// ActionPublish covers activating a Bishop's Charge.
	ActionPublish Action = "publish"
	// ActionManageUsers covers listing accounts and changing roles.
	ActionManageUsers Action = "manage_users"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionPublish
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}
