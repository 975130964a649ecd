package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigratesLegacyPartsArray(t *testing.T) {
	raw := `[{"role":"user","parts":[{"text":"hi"}]},{"role":"model","parts":[{"text":"hello"}]}]`

	tree, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 2, tree.Len())
	thread := tree.Thread("")
	require.Len(t, thread, 2)
	assert.Equal(t, NewMessage(RoleUser, "hi"), thread[0])
	assert.Equal(t, NewMessage(RoleModel, "hello"), thread[1])

	root, ok := tree.Node(tree.RootID())
	require.True(t, ok)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, []string{tree.CurrentLeafID()}, root.Children)
}

func TestMigrateLegacyAcceptsMixedShapes(t *testing.T) {
	msgs := []LegacyMessage{
		{Role: "system", Text: "be nice"},
		{Role: "user", Content: "question"},
		{Role: "assistant", Parts: []Part{{Text: "ans"}, {Text: "wer"}}},
	}

	tree, err := MigrateLegacy(msgs, sequentialIDs())
	require.NoError(t, err)

	assert.Equal(t, "n1", tree.RootID())
	assert.Equal(t, "n3", tree.CurrentLeafID())
	assert.Equal(t, []Message{
		NewMessage(RoleSystem, "be nice"),
		NewMessage(RoleUser, "question"),
		NewMessage(RoleModel, "answer"),
	}, tree.Thread(""))

	mid, _ := tree.Node("n2")
	require.NotNil(t, mid.ParentID)
	assert.Equal(t, "n1", *mid.ParentID)
}

func TestMigrateLegacyEmptyArray(t *testing.T) {
	tree, err := MigrateLegacy(nil)
	require.NoError(t, err)
	snap := tree.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Nil(t, snap.RootID)
	assert.Nil(t, snap.CurrentLeafID)
}

func TestMigrateLegacyUnknownRole(t *testing.T) {
	_, err := MigrateLegacy([]LegacyMessage{{Role: "tool", Text: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestMigratedTreeLoadsBack(t *testing.T) {
	migrated, err := MigrateLegacy([]LegacyMessage{
		{Role: "user", Text: "a"},
		{Role: "model", Text: "b"},
	})
	require.NoError(t, err)
	snap := migrated.Snapshot()

	tree, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, snap, tree.Snapshot())
	assert.Equal(t, []string{"a", "b"}, texts(tree.Thread("")))
}
