package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(id, title string) Summary {
	return Summary{ID: id, Title: title, LastActivity: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestMergeServerWinsOnConflict(t *testing.T) {
	local := []Summary{sum("A", "local a"), sum("B", "local b")}
	server := []Summary{sum("B", "server b"), sum("C", "server c")}

	got := Merge(local, server)

	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].ID)
	assert.Equal(t, "server b", got[0].Title, "server version must win for shared IDs")
	assert.Equal(t, "C", got[1].ID)
	assert.Equal(t, "A", got[2].ID)
}

func TestMergeIsIdempotent(t *testing.T) {
	local := []Summary{sum("A", "a"), sum("B", "b")}
	server := []Summary{sum("B", "b2"), sum("C", "c")}

	first := Merge(local, server)
	second := Merge(local, server)

	assert.Equal(t, first, second)
}

func TestMergeUniqueIdentifiers(t *testing.T) {
	local := []Summary{sum("A", "a"), sum("A", "a dup"), sum("B", "b")}
	server := []Summary{sum("C", "c"), sum("C", "c dup")}

	got := Merge(local, server)

	ids := make(map[string]int)
	for _, s := range got {
		ids[s.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appears %d times", id, n)
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	t.Run("both empty", func(t *testing.T) {
		assert.Empty(t, Merge(nil, nil))
	})

	t.Run("server only", func(t *testing.T) {
		server := []Summary{sum("A", "a")}
		got := Merge(nil, server)
		assert.Equal(t, server, got)
	})

	t.Run("local only", func(t *testing.T) {
		local := []Summary{sum("A", "a"), sum("B", "b")}
		got := Merge(local, nil)
		assert.Equal(t, local, got)
	})
}

func TestMergePreservesServerOrder(t *testing.T) {
	server := []Summary{sum("３", "x"), sum("1", "y"), sum("2", "z")}

	got := Merge(nil, server)

	require.Len(t, got, 3)
	assert.Equal(t, "３", got[0].ID)
	assert.Equal(t, "1", got[1].ID)
	assert.Equal(t, "2", got[2].ID)
}
