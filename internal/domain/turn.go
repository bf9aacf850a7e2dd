package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one role-tagged message in the session history. Turns are
// append-only during a session; their order defines prompt context order.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
