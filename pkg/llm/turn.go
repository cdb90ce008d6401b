package llm

// Role tags the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one message exchanged in the conversation, tagged by speaker role.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a Turn spoken by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a Turn spoken by the model.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// SystemTurn returns a directive Turn. System turns only ever exist in outbound
// requests, never in stored history.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// Message converts the turn to its wire form.
func (t Turn) Message() Message {
	return Message{Role: string(t.Role), Content: t.Content}
}
