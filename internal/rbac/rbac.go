package rbac

type Role string
type Action string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionComment Action = "comment"
	ActionReview  Action = "review"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleInstructor:
		return action == ActionRead || action == ActionComment || action == ActionReview
	case RoleStudent:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	default:
		return false
	}
}

// Reviewer reports whether comments from this role reopen a field response.
// Student comments resolve it instead.
func Reviewer(role Role) bool {
	return role == RoleInstructor || role == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return Role(role)
	default:
		return RoleStudent
	}
}
