package duet

import "github.com/haivivi/duet/pkg/recorder"

// Role identifies one side of the conversation.
type Role = recorder.Role

const (
	RoleA = recorder.RoleA // therapist, opens the session
	RoleB = recorder.RoleB // client
)
