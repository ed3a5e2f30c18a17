package entity

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 是否为合法角色
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationTurn 对话历史中的一条消息
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastTurns 返回最近 n 条消息，n <= 0 时返回空
func LastTurns(turns []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
