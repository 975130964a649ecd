package conversation

import (
	"fmt"
	"strings"
)

// LegacyMessage 是树形存储之前的线性历史元素，兼容
// {role, parts:[{text}]}、{role, text} 与 {role, content} 三种写法。
type LegacyMessage struct {
	Role    string `json:"role"`
	Parts   []Part `json:"parts,omitempty"`
	Text    string `json:"text,omitempty"`
	Content string `json:"content,omitempty"`
}

func (m LegacyMessage) text() string {
	if len(m.Parts) > 0 {
		return Message{Parts: m.Parts}.Text()
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Content
}

// normalizeLegacyRole 把旧数据里的 assistant 统一为规范角色 model。
func normalizeLegacyRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "model":
		return RoleModel
	case "user":
		return RoleUser
	case "system":
		return RoleSystem
	}
	return Role(role)
}

// MigrateLegacy 把线性历史转换为一条严格线性的链：每条消息一个节点，
// 父节点为前一条消息，rootId 为第一条，currentLeafId 为最后一条。
func MigrateLegacy(messages []LegacyMessage, opts ...Option) (*Tree, error) {
	t := New(opts...)
	parentID := ""
	for i, m := range messages {
		id, err := t.AddMessage(normalizeLegacyRole(m.Role), m.text(), parentID)
		if err != nil {
			return nil, fmt.Errorf("migrate legacy message %d: %w", i, err)
		}
		parentID = id
	}
	return t, nil
}
