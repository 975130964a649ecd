package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Snapshot 是对话树的持久化形态 {nodes, rootId, currentLeafId}，原样写入存储并原样读回。
type Snapshot struct {
	Nodes         map[string]Node `json:"nodes"`
	RootID        *string         `json:"rootId"`
	CurrentLeafID *string         `json:"currentLeafId"`
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func derefID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// Snapshot 返回树的结构快照，与树本身不共享任何可变数据。
func (t *Tree) Snapshot() Snapshot {
	nodes := make(map[string]Node, len(t.nodes))
	for id, n := range t.nodes {
		cp := *n
		cp.Children = append([]string{}, n.Children...)
		if n.ParentID != nil {
			pid := *n.ParentID
			cp.ParentID = &pid
		}
		nodes[id] = cp
	}
	return Snapshot{
		Nodes:         nodes,
		RootID:        optionalID(t.rootID),
		CurrentLeafID: optionalID(t.currentLeafID),
	}
}

// MarshalJSON 让 Tree 可以直接序列化为持久化形态。
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// FromSnapshot 按原样加载快照，并校验父子引用双向一致、除根以外每个节点都有父节点，
// 以及 rootId 与 currentLeafId 均指向已存在的节点。
func FromSnapshot(s Snapshot, opts ...Option) (*Tree, error) {
	t := New(opts...)
	for key, n := range s.Nodes {
		if n.ID == "" {
			n.ID = key
		}
		if n.ID != key {
			return nil, fmt.Errorf("%w: node key %s does not match id %s", ErrCorruptTree, key, n.ID)
		}
		if !n.Role.Valid() {
			return nil, fmt.Errorf("%w: node %s has role %q", ErrCorruptTree, key, n.Role)
		}
		node := n
		node.Children = append([]string{}, n.Children...)
		if n.ParentID != nil {
			pid := *n.ParentID
			node.ParentID = &pid
		}
		t.nodes[key] = &node
	}

	t.rootID = derefID(s.RootID)
	t.currentLeafID = derefID(s.CurrentLeafID)

	for id, n := range t.nodes {
		if n.ParentID == nil {
			if id != t.rootID {
				return nil, fmt.Errorf("%w: node %s has no parent and is not the root", ErrCorruptTree, id)
			}
		} else {
			parent, ok := t.nodes[*n.ParentID]
			if !ok {
				return nil, fmt.Errorf("%w: node %s references missing parent %s", ErrCorruptTree, id, *n.ParentID)
			}
			if !containsID(parent.Children, id) {
				return nil, fmt.Errorf("%w: parent %s does not list child %s", ErrCorruptTree, *n.ParentID, id)
			}
		}
		for _, childID := range n.Children {
			child, ok := t.nodes[childID]
			if !ok {
				return nil, fmt.Errorf("%w: node %s references missing child %s", ErrCorruptTree, id, childID)
			}
			if child.ParentID == nil || *child.ParentID != id {
				return nil, fmt.Errorf("%w: child %s of %s points to a different parent", ErrCorruptTree, childID, id)
			}
		}
	}

	if len(t.nodes) > 0 && t.rootID == "" {
		return nil, fmt.Errorf("%w: non-empty tree without rootId", ErrCorruptTree)
	}
	if t.rootID != "" {
		root, ok := t.nodes[t.rootID]
		if !ok {
			return nil, fmt.Errorf("%w: rootId %s not in nodes", ErrCorruptTree, t.rootID)
		}
		if root.ParentID != nil {
			return nil, fmt.Errorf("%w: root %s has a parent", ErrCorruptTree, t.rootID)
		}
	}
	if t.currentLeafID != "" && !t.Has(t.currentLeafID) {
		return nil, fmt.Errorf("%w: currentLeafId %s not in nodes", ErrCorruptTree, t.currentLeafID)
	}
	return t, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Parse 从存储中的 JSON 构造对话树，按输入形态分派：
// 空值或 null 得到空树；数组按旧版线性历史迁移；带 nodes 的对象按快照加载。
func Parse(raw []byte, opts ...Option) (*Tree, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return New(opts...), nil
	}

	switch trimmed[0] {
	case '[':
		var legacy []LegacyMessage
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("%w: decode legacy history: %v", ErrCorruptTree, err)
		}
		return MigrateLegacy(legacy, opts...)
	case '{':
		var s Snapshot
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: decode tree: %v", ErrCorruptTree, err)
		}
		if s.Nodes == nil {
			return New(opts...), nil
		}
		return FromSnapshot(s, opts...)
	default:
		return nil, fmt.Errorf("%w: unexpected JSON value", ErrCorruptTree)
	}
}
