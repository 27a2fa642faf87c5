package recorder

// Role identifies one side of the conversation.
type Role int

const (
	// RoleA opens the conversation (the therapist).
	RoleA Role = iota
	// RoleB answers (the client).
	RoleB
)

// Roles lists both roles in speaking order.
var Roles = [...]Role{RoleA, RoleB}

// String returns the lower-case role name used in file names.
func (r Role) String() string {
	switch r {
	case RoleA:
		return "therapist"
	case RoleB:
		return "client"
	default:
		return "unknown"
	}
}

// Title returns the role name as shown in transcripts.
func (r Role) Title() string {
	switch r {
	case RoleA:
		return "Therapist"
	case RoleB:
		return "Client"
	default:
		return "Unknown"
	}
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}
