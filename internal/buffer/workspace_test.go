package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocate(t *testing.T, ws *Workspace, name string, enc Encoding) Slot {
	t.Helper()
	slot, err := ws.Allocate(name, enc)
	require.NoError(t, err)
	return slot
}

func TestWorkspaceAllocate(t *testing.T) {
	ws, err := NewWorkspace(128, 128)
	require.NoError(t, err)

	color := allocate(t, ws, "color", RGB565)
	gray := allocate(t, ws, "gray", Gray8)

	assert.Equal(t, 128*128*2, ws.Capacity(color))
	assert.Equal(t, 128*128, ws.Capacity(gray))
	assert.Equal(t, 128*128*3, ws.TotalBytes())
	assert.Equal(t, "gray", ws.Name(gray))

	_, err = ws.Allocate("gray", Gray8)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewWorkspace(0, 128)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWorkspaceBindCapacity(t *testing.T) {
	ws, err := NewWorkspace(16, 16)
	require.NoError(t, err)
	gray := allocate(t, ws, "gray", Gray8)

	b, err := ws.Bind(gray, 16, 16, Gray8)
	require.NoError(t, err)
	assert.Equal(t, 256, b.Size())

	_, err = ws.Bind(gray, 17, 16, Gray8)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = ws.Bind(gray, 16, 16, RGB565)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = ws.Bind(gray, 0, 16, Gray8)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWorkspaceRebindInvalidatesPrevious(t *testing.T) {
	ws, err := NewWorkspace(8, 8)
	require.NoError(t, err)
	slot := allocate(t, ws, "binary", Gray8)

	first, err := ws.Bind(slot, 8, 8, Gray8)
	require.NoError(t, err)
	assert.True(t, ws.Live(first))

	second, err := ws.Bind(slot, 4, 4, Gray8)
	require.NoError(t, err)
	assert.False(t, ws.Live(first))
	assert.True(t, ws.Live(second))
	assert.True(t, first.Overlaps(second.Image), "bindings reuse the same region")
}

func TestWorkspaceForeignSlot(t *testing.T) {
	a, err := NewWorkspace(4, 4)
	require.NoError(t, err)
	b, err := NewWorkspace(4, 4)
	require.NoError(t, err)

	slot := allocate(t, a, "gray", Gray8)

	_, err = b.Bind(slot, 4, 4, Gray8)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = b.Region(slot)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, b.Live(Binding{slot: slot}))

	region, err := a.Region(slot)
	require.NoError(t, err)
	assert.Len(t, region, 16)
}
