package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/annoconv/dserrors"
)

func TestCategories_AddIsIdempotent(t *testing.T) {
	c := NewCategories()

	i, err := c.Add("cat")
	require.NoError(t, err)
	j, err := c.Add("dog")
	require.NoError(t, err)
	again, err := c.Add("cat")
	require.NoError(t, err)

	assert.Equal(t, 0, i)
	assert.Equal(t, 1, j)
	assert.Equal(t, i, again)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"cat", "dog"}, c.Names())
}

func TestCategories_NewCollapsesRepeats(t *testing.T) {
	c := NewCategories("a", "b", "a")
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestCategories_StrictRejectsRepeat(t *testing.T) {
	c := NewStrictCategories()
	_, err := c.Add("cat")
	require.NoError(t, err)

	i, err := c.AddWithParent("cat", "animal")
	require.Error(t, err)
	assert.True(t, dserrors.IsDuplicateLabel(err))
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, c.Len())

	e, ok := dserrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "cat", e.Details["label"])

	_, err = c.Clone().Add("cat")
	assert.True(t, dserrors.IsDuplicateLabel(err), "clones stay strict")
}

func TestCategories_Lookup(t *testing.T) {
	c := NewCategories("a", "b")

	i, ok := c.IndexOf("b")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = c.IndexOf("z")
	assert.False(t, ok)

	name, ok := c.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	for _, bad := range []int{-1, 2} {
		_, ok := c.Name(bad)
		assert.False(t, ok, "index %d", bad)
		assert.False(t, c.Valid(bad), "index %d", bad)
	}
}

func TestCategories_EqualIgnoresParent(t *testing.T) {
	a := NewCategories()
	_, err := a.AddWithParent("x", "p")
	require.NoError(t, err)
	_, err = a.Add("y")
	require.NoError(t, err)

	assert.True(t, a.Equal(NewCategories("x", "y")))
	assert.False(t, a.Equal(NewCategories("y", "x")))
	assert.False(t, a.Equal(NewCategories("x")))
}

func TestCategories_CloneIsIndependent(t *testing.T) {
	a := NewCategories("x")
	b := a.Clone()
	_, err := b.Add("y")
	require.NoError(t, err)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, b.Len())
}
