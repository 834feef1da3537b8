package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupQueue_FIFOOrder(t *testing.T) {
	q := newBackupQueue()

	t1 := q.Enqueue("postgres", nil)
	t2 := q.Enqueue("mysql", nil)
	t3 := q.Enqueue("postgres", &BackupOptions{Kind: BackupKindFull})
	require.Equal(t, 3, q.Len())

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, t1, first.ticket)
	assert.Equal(t, "postgres", first.storageType)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, t2, second.ticket)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, t3, third.ticket)
	require.NotNil(t, third.options)
	assert.Equal(t, BackupKindFull, third.options.Kind)

	_, ok = q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestBackupQueue_TicketResolution(t *testing.T) {
	q := newBackupQueue()

	ticket := q.Enqueue("postgres", nil)

	_, ok := q.Resolve(ticket)
	assert.False(t, ok, "pending ticket must not resolve")
	assert.True(t, q.Pending(ticket))

	req, ok := q.Dequeue()
	require.True(t, ok)
	q.Bind(req.ticket, "backup-20260825120000-deadbeef")

	jobID, ok := q.Resolve(ticket)
	require.True(t, ok)
	assert.Equal(t, "backup-20260825120000-deadbeef", jobID)
	assert.False(t, q.Pending(ticket))

	_, ok = q.Resolve("ticket-unknown")
	assert.False(t, ok)
}

func TestBackupQueue_Remove(t *testing.T) {
	q := newBackupQueue()

	t1 := q.Enqueue("postgres", nil)
	t2 := q.Enqueue("mysql", nil)
	t3 := q.Enqueue("qdrant", nil)

	assert.True(t, q.Remove(t2))
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.Remove(t2), "second removal finds nothing")

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	assert.Equal(t, t1, first.ticket)
	assert.Equal(t, t3, second.ticket)

	assert.False(t, q.Remove("ticket-unknown"))
}

func TestBackupQueue_DrainFlag(t *testing.T) {
	q := newBackupQueue()

	require.True(t, q.BeginDrain())
	assert.False(t, q.BeginDrain(), "drain is not re-entrant")

	q.EndDrain()
	assert.True(t, q.BeginDrain())
	q.EndDrain()
}

func TestBackupQueue_TicketsAreUnique(t *testing.T) {
	q := newBackupQueue()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ticket := q.Enqueue("postgres", nil)
		_, dup := seen[ticket]
		require.False(t, dup, "duplicate ticket %s", ticket)
		seen[ticket] = struct{}{}
	}
}
