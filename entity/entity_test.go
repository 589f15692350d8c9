package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetAliasesIDAndType(t *testing.T) {
	e := New()
	e.Set("id", 7)
	e.Set("type", 2)
	e.Set("name", "bob")

	id, ok := e.ID()
	require.True(t, ok)
	assert.Equal(t, 7, id)

	typ, ok := e.Type()
	require.True(t, ok)
	assert.Equal(t, 2, typ)

	assert.Equal(t, []string{IDKey, TypeKey, "name"}, e.Keys())
}

func TestEqualByID(t *testing.T) {
	a := New()
	a.Set("id", 1)
	a.Set("name", "alice")
	b := New()
	b.Set("id", 1)
	b.Set("name", "someone else entirely")

	assert.True(t, a.Equal(b))
}

func TestEqualFallsBackToContentsWithoutID(t *testing.T) {
	a := New()
	a.Set("name", "alice")
	b := New()
	b.Set("name", "alice")
	c := New()
	c.Set("name", "bob")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestProjectKeepsOrderAndFillsMissing(t *testing.T) {
	e := New()
	e.Set("id", 1)
	e.Set("name", "alice")
	e.Set("age", 30)

	p := e.Project([]string{"name", "missing"})
	assert.Equal(t, []string{"name", "missing"}, p.Keys())
	v, ok := p.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
	v, ok = p.Get("missing")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRenamePreservesPosition(t *testing.T) {
	e := New()
	e.Set("a", 1)
	e.Set("b", 2)
	r := e.Rename("a", "z")
	assert.Equal(t, []string{"z", "b"}, r.Keys())
}

func TestVisitedEdgesNotPublished(t *testing.T) {
	e := New()
	e.Set("id", 1)
	e.MarkVisited("friends")
	assert.True(t, e.IsVisited("friends"))
	assert.Equal(t, []string{IDKey}, e.Keys())
	_, ok := e.Get("friends")
	assert.False(t, ok)
}

func TestMarshalJSONPreservesInsertionOrder(t *testing.T) {
	e := New()
	e.Set("id", 1)
	e.Set("name", "alice")
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{":id":1,"name":"alice"}`, string(b))
	assert.Equal(t, `{":id":1,"name":"alice"}`, string(b))
}

func TestHashStableForIdenticalIDs(t *testing.T) {
	a := New()
	a.Set("id", 42)
	b := New()
	b.Set("id", 42)
	assert.Equal(t, a.Hash(), b.Hash())
}
