package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLog() *Log {
	return NewLog(
		System("You are helpful."),
		User("What's the weather?"),
		NewToolCallRequest("1", "get_weather", `{"city_name":"Shenyang"}`),
		Assistant("It is warm."),
	)
}

func TestLog_AppendAndAccess(t *testing.T) {
	l := NewLog()
	assert.True(t, l.IsEmpty())
	_, ok := l.Last()
	assert.False(t, ok)
	_, ok = l.First()
	assert.False(t, ok)

	l.Append(User("a"), nil, Assistant("b"))
	assert.Equal(t, 2, l.Len())

	first, _ := l.First()
	last, _ := l.Last()
	assert.Equal(t, User("a"), first)
	assert.Equal(t, Assistant("b"), last)
	assert.Equal(t, Assistant("b"), l.At(1))
}

func TestLog_PopLast(t *testing.T) {
	l := sampleLog()
	m, ok := l.PopLast()
	require.True(t, ok)
	assert.Equal(t, Assistant("It is warm."), m)
	assert.Equal(t, 3, l.Len())

	empty := NewLog()
	_, ok = empty.PopLast()
	assert.False(t, ok)
}

func TestLog_MessagesIsCopy(t *testing.T) {
	l := sampleLog()
	msgs := l.Messages()
	msgs[0] = User("mutated")
	first, _ := l.First()
	assert.Equal(t, System("You are helpful."), first)
}

func TestLog_Query(t *testing.T) {
	l := sampleLog()

	users := l.Query(QueryOptions{Role: RoleUser})
	assert.Equal(t, 1, users.Len())

	weather := l.Query(QueryOptions{ContentContains: "weather"})
	assert.Equal(t, 2, weather.Len())

	both := l.Query(QueryOptions{Role: RoleTool, ContentContains: "Shenyang"})
	assert.Equal(t, 1, both.Len())

	assert.Equal(t, l.Len(), l.Query(QueryOptions{}).Len())
}

func TestLog_Algebra(t *testing.T) {
	l := sampleLog()

	assert.True(t, l.Union(l).SetEqual(l))
	assert.Equal(t, l.Messages(), l.Union(l).Messages())
	assert.True(t, l.Difference(l).IsEmpty())

	other := NewLog(User("What's the weather?"), User("new"))
	union := l.Union(other)
	assert.Equal(t, 5, union.Len())
	last, _ := union.Last()
	assert.Equal(t, User("new"), last)

	diff := l.Difference(other)
	assert.Equal(t, 3, diff.Len())
	assert.False(t, diff.Contains(User("What's the weather?")))

	assert.True(t, l.Contains(System("You are helpful.")))
	assert.False(t, l.Contains(nil))
}

func TestLog_UnionCollapsesDuplicates(t *testing.T) {
	l := NewLog(User("x"), User("x"), Assistant("y"))
	u := l.Union(NewLog())
	assert.Equal(t, 2, u.Len())
	assert.True(t, u.SetEqual(l))
}

func TestLog_AlgebraWithNil(t *testing.T) {
	l := sampleLog()

	assert.NotPanics(t, func() {
		assert.Equal(t, l.Messages(), l.Union(nil).Messages())
		assert.Equal(t, l.Messages(), l.Difference(nil).Messages())
		assert.False(t, l.SetEqual(nil))
		assert.True(t, NewLog().SetEqual(nil))
	})
}

func TestLog_Clone(t *testing.T) {
	l := sampleLog()
	c := l.Clone()
	c.Append(User("extra"))
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, 5, c.Len())
}

func TestLog_JSONRoundTrip(t *testing.T) {
	l := NewLog(System("s"), NewToolCallRequest("7", "f", `{"a":1}`), NewToolResult("7", "ok"))
	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"tool_call"`)

	restored := NewLog()
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, l.Messages(), restored.Messages())
}

func TestState(t *testing.T) {
	s := NewState()
	s.Merge(map[string]any{"a": 1, "b": "two"})
	s.Merge(map[string]any{"a": 3})

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	str, ok := s.GetString("b")
	assert.True(t, ok)
	assert.Equal(t, "two", str)

	c := s.Clone()
	c["a"] = 9
	assert.Equal(t, 3, s["a"])
}

func TestStageName(t *testing.T) {
	f := StageFunc(func(_ context.Context, _ *Log, _ State) ([]Message, error) { return nil, nil })
	assert.Equal(t, "core.StageFunc", StageName(f))
	assert.NotEmpty(t, NewID())
}
