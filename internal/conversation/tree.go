// Package conversation 实现分支式对话树：节点只增不删，通过 parentId 指针表达结构，
// currentLeafId 指向当前活跃分支的末端。
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role 是规范化后的消息角色，各模型服务自己的角色名在适配层转换。
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Valid 判断角色是否属于规范角色集合。
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleModel:
		return true
	}
	return false
}

var (
	ErrInvalidRole    = errors.New("conversation: invalid role")
	ErrParentNotFound = errors.New("conversation: parent node not found")
	ErrRootExists     = errors.New("conversation: tree already has a root")
	ErrCorruptTree    = errors.New("conversation: corrupt tree")
)

// Node 是对话树中的一条消息。
type Node struct {
	ID        string   `json:"id"`
	ParentID  *string  `json:"parentId"`
	Children  []string `json:"children"`
	Role      Role     `json:"role"`
	Text      string   `json:"text"`
	CreatedAt int64    `json:"createdAt"` // epoch 毫秒
}

// Part 是消息内容片段，当前只承载纯文本。
type Part struct {
	Text string `json:"text"`
}

// Message 是发送给模型服务的规范消息结构 {role, parts:[{text}]}。
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text 拼接消息的所有文本片段。
func (m Message) Text() string {
	if len(m.Parts) == 1 {
		return m.Parts[0].Text
	}
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}

// NewMessage 构造单片段的规范消息。
func NewMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Tree 是请求级别的对话树实例，不在请求之间共享，因此不加锁。
type Tree struct {
	nodes         map[string]*Node
	rootID        string
	currentLeafID string

	now   func() time.Time
	newID func() string
}

// Option 用于定制 Tree 的时钟和 ID 生成器。
type Option func(*Tree)

// WithClock 替换节点创建时间的来源。
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// WithIDGenerator 替换节点 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(t *Tree) { t.newID = gen }
}

// New 创建一棵空树。
func New(opts ...Option) *Tree {
	t := &Tree{
		nodes: make(map[string]*Node),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddMessage 追加一个节点并返回其 ID。parentID 为空只在空树上合法（建立根节点）。
// 这是唯一的修改操作：只会新增节点并向父节点的 children 追加，
// 传入较早节点的 ID 即可在该处产生新的分支。
func (t *Tree) AddMessage(role Role, text, parentID string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	var parent *Node
	if parentID == "" {
		if t.rootID != "" {
			return "", ErrRootExists
		}
	} else {
		p, ok := t.nodes[parentID]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
		}
		parent = p
	}

	node := &Node{
		ID:        t.newID(),
		Children:  []string{},
		Role:      role,
		Text:      text,
		CreatedAt: t.now().UnixMilli(),
	}
	if parent != nil {
		pid := parent.ID
		node.ParentID = &pid
		parent.Children = append(parent.Children, node.ID)
	}

	t.nodes[node.ID] = node
	if t.rootID == "" {
		t.rootID = node.ID
	}
	t.currentLeafID = node.ID
	return node.ID, nil
}

// Thread 返回从根到 leafID 的规范消息序列。leafID 为空时使用 currentLeafId。
// 节点不存在或树为空时返回空序列。
func (t *Tree) Thread(leafID string) []Message {
	if leafID == "" {
		leafID = t.currentLeafID
	}
	var reversed []Message
	// 以节点数为上限，防止被篡改的持久化数据中出现环。
	for steps := 0; leafID != "" && steps < len(t.nodes); steps++ {
		node, ok := t.nodes[leafID]
		if !ok {
			break
		}
		reversed = append(reversed, NewMessage(node.Role, node.Text))
		if node.ParentID == nil {
			break
		}
		leafID = *node.ParentID
	}

	thread := make([]Message, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		thread = append(thread, reversed[i])
	}
	return thread
}

// Node 按 ID 查找节点，返回副本。
func (t *Tree) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Children = append([]string{}, n.Children...)
	return cp, true
}

// Has 判断节点是否存在。
func (t *Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// Len 返回节点数量。
func (t *Tree) Len() int {
	return len(t.nodes)
}

// IsEmpty 判断树是否还没有任何节点。
func (t *Tree) IsEmpty() bool {
	return len(t.nodes) == 0
}

// RootID 返回根节点 ID，空树返回空串。
func (t *Tree) RootID() string {
	return t.rootID
}

// CurrentLeafID 返回当前活跃分支末端的节点 ID。
func (t *Tree) CurrentLeafID() string {
	return t.currentLeafID
}
