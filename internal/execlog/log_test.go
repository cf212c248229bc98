package execlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog_AddTailSince(t *testing.T) {
	l := New()
	for _, s := range []string{"a", "b", "c", "d"} {
		l.Add(s)
	}
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []string{"c", "d"}, l.Tail(2))
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Tail(0))

	got, next := l.Since(1)
	assert.Equal(t, []string{"b", "c", "d"}, got)
	assert.Equal(t, 4, next)

	got, next = l.Since(next)
	assert.Empty(t, got)
	assert.Equal(t, 4, next)
}

func TestLog_TrimKeepsSequence(t *testing.T) {
	l := New()
	for _, s := range []string{"a", "b", "c", "d"} {
		l.Add(s)
	}
	l.Trim(2)
	assert.Equal(t, []string{"c", "d"}, l.Entries())

	l.Add("e")
	got, next := l.Since(1)
	assert.Equal(t, []string{"c", "d", "e"}, got)
	assert.Equal(t, 5, next)

	got, _ = l.Since(4)
	assert.Equal(t, []string{"e"}, got)
}
