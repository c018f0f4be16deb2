// ABOUTME: Tests for the correlation table lifecycle and ownership queries
// ABOUTME: Validates release idempotency and tombstone-guarded re-registration

package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AllocateIsUnique(t *testing.T) {
	table := New(nil)
	defer table.Close()

	seen := make(map[string]bool)
	for range 100 {
		id := table.Allocate()
		assert.False(t, seen[id], "allocated id repeated: %s", id)
		seen[id] = true
	}
}

func TestTable_RegisterAndQuery(t *testing.T) {
	table := New(nil)
	defer table.Close()

	id := table.Allocate()
	require.NoError(t, table.Register(id, KindLocal))

	assert.True(t, table.IsLive(id))
	assert.True(t, table.IsLocallyOwned(id))

	kind, ok := table.KindOf(id)
	require.True(t, ok)
	assert.Equal(t, KindLocal, kind)

	status, ok := table.StatusOf(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, status)
}

func TestTable_RemoteIsNotLocallyOwned(t *testing.T) {
	table := New(nil)
	defer table.Close()

	require.NoError(t, table.Register("other-client-id", KindRemote))
	assert.True(t, table.IsLive("other-client-id"))
	assert.False(t, table.IsLocallyOwned("other-client-id"))
}

func TestTable_DuplicateRegisterFails(t *testing.T) {
	table := New(nil)
	defer table.Close()

	require.NoError(t, table.Register("dup", KindLocal))
	err := table.Register("dup", KindRemote)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// The original registration is untouched
	assert.True(t, table.IsLocallyOwned("dup"))
}

func TestTable_ReleaseIsIdempotent(t *testing.T) {
	table := New(nil)
	defer table.Close()

	require.NoError(t, table.Register("once", KindLocal))
	assert.True(t, table.Release("once", StatusDone))
	assert.False(t, table.Release("once", StatusDone), "second release must be a no-op")
	assert.False(t, table.IsLive("once"))
	assert.False(t, table.IsLocallyOwned("once"))
}

func TestTable_ReleasedIdCannotComeBack(t *testing.T) {
	table := New(nil)
	defer table.Close()

	require.NoError(t, table.Register("ghost", KindLocal))
	table.Release("ghost", StatusCancelled)

	assert.True(t, table.WasReleased("ghost"))
	err := table.Register("ghost", KindRemote)
	assert.ErrorIs(t, err, ErrReleased)
	assert.False(t, table.IsLive("ghost"))
}

func TestTable_MarkStreaming(t *testing.T) {
	table := New(nil)
	defer table.Close()

	require.NoError(t, table.Register("s", KindLocal))
	assert.True(t, table.MarkStreaming("s"))

	status, ok := table.StatusOf("s")
	require.True(t, ok)
	assert.Equal(t, StatusStreaming, status)

	// Marking again keeps streaming, never regresses
	assert.True(t, table.MarkStreaming("s"))
	status, _ = table.StatusOf("s")
	assert.Equal(t, StatusStreaming, status)

	assert.False(t, table.MarkStreaming("never-registered"))
}

func TestTable_Len(t *testing.T) {
	table := New(nil)
	defer table.Close()

	assert.Equal(t, 0, table.Len())
	require.NoError(t, table.Register("a", KindLocal))
	require.NoError(t, table.Register("b", KindRemote))
	assert.Equal(t, 2, table.Len())
	table.Release("a", StatusDone)
	assert.Equal(t, 1, table.Len())
}

func TestTable_TombstoneExpiryAllowsReuse(t *testing.T) {
	table := newTable(10*time.Millisecond, 100, nil)
	defer table.Close()

	require.NoError(t, table.Register("brief", KindLocal))
	table.Release("brief", StatusDone)
	assert.True(t, table.WasReleased("brief"))

	time.Sleep(20 * time.Millisecond)

	assert.False(t, table.WasReleased("brief"))
	assert.NoError(t, table.Register("brief", KindRemote))
}

func TestTable_Concurrent(t *testing.T) {
	table := New(nil)
	defer table.Close()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			id := table.Allocate()
			if err := table.Register(id, KindLocal); err != nil {
				return
			}
			table.MarkStreaming(id)
			table.IsLocallyOwned(id)
			table.Release(id, StatusDone)
			table.WasReleased(id)
		})
	}
	wg.Wait()

	assert.Equal(t, 0, table.Len())
}

func TestTable_StringForms(t *testing.T) {
	assert.Equal(t, "local", KindLocal.String())
	assert.Equal(t, "remote", KindRemote.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "streaming", StatusStreaming.String())
	assert.Equal(t, "done", StatusDone.String())
	assert.Equal(t, "errored", StatusErrored.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
}
