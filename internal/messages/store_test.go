package messages

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/models"
)

type fakeLookup struct {
	mu      sync.Mutex
	sends   map[models.MessageID]models.MutationStatus
	deletes map[models.MessageID]bool
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		sends:   make(map[models.MessageID]models.MutationStatus),
		deletes: make(map[models.MessageID]bool),
	}
}

func (f *fakeLookup) SendStatus(id models.MessageID) (models.MutationStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.sends[id]
	return status, ok
}

func (f *fakeLookup) DeletePending(id models.MessageID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[id]
}

func (f *fakeLookup) setSend(id models.MessageID, status models.MutationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends[id] = status
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func serverMsg(id int64, thread models.ThreadID, offset time.Duration, content string) models.Message {
	return models.Message{
		ID:        models.ServerID(id),
		ThreadID:  thread,
		SenderID:  10,
		Content:   content,
		CreatedAt: base.Add(offset),
	}
}

func localMsg(n int64, thread models.ThreadID, offset time.Duration, content string) models.Message {
	return models.Message{
		ID:        models.LocalID(n),
		ThreadID:  thread,
		SenderID:  1,
		Content:   content,
		CreatedAt: base.Add(offset),
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID.String()
	}
	return out
}

func TestLoadSnapshotIgnoresOtherThread(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)

	require.True(t, store.LoadSnapshot(7, []models.Message{serverMsg(1, 7, 0, "a")}))
	require.False(t, store.LoadSnapshot(8, []models.Message{serverMsg(2, 8, 0, "b")}))
	require.Equal(t, []string{"1"}, ids(store.List()))

	store.Close()
	require.False(t, store.LoadSnapshot(7, []models.Message{serverMsg(3, 7, 0, "c")}))
	require.Zero(t, store.Len())
}

func TestLoadSnapshotSortsByCreatedAt(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)

	store.LoadSnapshot(7, []models.Message{
		serverMsg(3, 7, 3*time.Second, "c"),
		serverMsg(1, 7, time.Second, "a"),
		serverMsg(2, 7, 2*time.Second, "b"),
		serverMsg(2, 7, 2*time.Second, "dup"),
	})
	require.Equal(t, []string{"1", "2", "3"}, ids(store.List()))

	got, ok := store.Get(models.ServerID(2))
	require.True(t, ok)
	require.Equal(t, "b", got.Content)
}

func TestLoadSnapshotKeepsInFlightProvisional(t *testing.T) {
	lookup := newFakeLookup()
	store := NewStore(lookup)
	store.Open(7)

	store.LoadSnapshot(7, []models.Message{serverMsg(1, 7, 0, "a")})
	pending := localMsg(1, 7, time.Minute, "hello")
	lookup.setSend(pending.ID, models.MutationStatusInFlight)
	require.NoError(t, store.AppendOptimistic(pending))

	store.LoadSnapshot(7, []models.Message{serverMsg(1, 7, 0, "a"), serverMsg(2, 7, time.Second, "b")})
	require.Equal(t, []string{"1", "2", "local:1"}, ids(store.List()))

	lookup.setSend(pending.ID, models.MutationStatusFailed)
	store.LoadSnapshot(7, []models.Message{serverMsg(1, 7, 0, "a")})
	require.Equal(t, []string{"1"}, ids(store.List()))
}

func TestLoadSnapshotDropsUntrackedProvisional(t *testing.T) {
	store := NewStore(newFakeLookup())
	store.Open(7)

	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 0, "orphan")))
	store.LoadSnapshot(7, nil)
	require.Zero(t, store.Len())
}

func TestLoadSnapshotHidesPendingDeletes(t *testing.T) {
	lookup := newFakeLookup()
	store := NewStore(lookup)
	store.Open(7)

	snapshot := []models.Message{serverMsg(1, 7, 0, "a"), serverMsg(2, 7, time.Second, "b")}
	store.LoadSnapshot(7, snapshot)

	_, err := store.RemoveConfirmed(models.ServerID(2))
	require.NoError(t, err)
	lookup.mu.Lock()
	lookup.deletes[models.ServerID(2)] = true
	lookup.mu.Unlock()

	store.LoadSnapshot(7, snapshot)
	require.Equal(t, []string{"1"}, ids(store.List()))
}

func TestLoadSnapshotIgnoresNonPositiveServerIDs(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)

	require.True(t, store.LoadSnapshot(7, []models.Message{
		serverMsg(0, 7, 0, "zero"),
		serverMsg(-3, 7, time.Second, "negative"),
		serverMsg(4, 7, 2*time.Second, "ok"),
	}))
	require.Equal(t, []string{"4"}, ids(store.List()))
}

func TestProvisionalTiesOrderedByInsertion(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)

	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 0, "first")))
	require.NoError(t, store.AppendOptimistic(localMsg(2, 7, 0, "second")))
	store.LoadSnapshot(7, []models.Message{serverMsg(5, 7, 0, "server")})

	require.Equal(t, []string{"5", "local:1", "local:2"}, ids(store.List()))
}

func TestAppendOptimisticValidation(t *testing.T) {
	store := NewStore(nil)
	require.ErrorIs(t, store.AppendOptimistic(localMsg(1, 7, 0, "x")), ErrNoThread)

	store.Open(7)
	require.ErrorIs(t, store.AppendOptimistic(serverMsg(1, 7, 0, "x")), ErrNotProvisional)
	require.ErrorIs(t, store.AppendOptimistic(localMsg(1, 8, 0, "x")), ErrThreadMismatch)
	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 0, "x")))
	require.ErrorIs(t, store.AppendOptimistic(localMsg(1, 7, 0, "x")), ErrDuplicateID)
}

func TestResolveOptimistic(t *testing.T) {
	tests := []struct {
		name     string
		snapshot []models.Message
		append   bool
		outcome  Outcome
		changed  bool
		want     []string
	}{
		{
			name:    "success replaces in place",
			append:  true,
			outcome: Success(serverMsg(9, 7, time.Second, "hello")),
			changed: true,
			want:    []string{"1", "9"},
		},
		{
			name:     "success after snapshot already delivered it",
			snapshot: []models.Message{serverMsg(9, 7, time.Second, "hello")},
			append:   true,
			outcome:  Success(serverMsg(9, 7, time.Second, "hello")),
			changed:  true,
			want:     []string{"1", "9"},
		},
		{
			name:    "success without provisional inserts",
			outcome: Success(serverMsg(9, 7, time.Second, "hello")),
			changed: true,
			want:    []string{"1", "9"},
		},
		{
			name:    "success for other thread is dropped",
			outcome: Success(serverMsg(9, 8, time.Second, "hello")),
			want:    []string{"1"},
		},
		{
			name:    "failure removes provisional",
			append:  true,
			outcome: Failure(errors.New("boom")),
			changed: true,
			want:    []string{"1"},
		},
		{
			name:    "failure without provisional",
			outcome: Failure(nil),
			want:    []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(nil)
			store.Open(7)
			store.LoadSnapshot(7, append([]models.Message{serverMsg(1, 7, 0, "a")}, tt.snapshot...))
			if tt.append {
				require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 2*time.Second, "hello")))
			}

			changed := store.ResolveOptimistic(models.LocalID(1), tt.outcome)
			require.Equal(t, tt.changed, changed)
			require.Equal(t, tt.want, ids(store.List()))
		})
	}
}

func TestResolveOptimisticKeepsThreadID(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)
	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 0, "hi")))

	confirmed := serverMsg(4, 0, 0, "hi")
	require.True(t, store.ResolveOptimistic(models.LocalID(1), Success(confirmed)))

	got, ok := store.Get(models.ServerID(4))
	require.True(t, ok)
	require.Equal(t, models.ThreadID(7), got.ThreadID)
}

func TestResolveOptimisticKeepsPositionUntilSnapshot(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)
	store.LoadSnapshot(7, []models.Message{
		serverMsg(1, 7, 0, "a"),
		serverMsg(2, 7, 5*time.Second, "b"),
	})
	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, 10*time.Second, "hi")))

	// The server clock is behind the local one.
	confirmed := serverMsg(9, 7, 3*time.Second, "hi")
	require.True(t, store.ResolveOptimistic(models.LocalID(1), Success(confirmed)))
	require.Equal(t, []string{"1", "2", "9"}, ids(store.List()))

	got, ok := store.Get(models.ServerID(9))
	require.True(t, ok)
	require.True(t, got.CreatedAt.Equal(base.Add(3*time.Second)))

	store.LoadSnapshot(7, []models.Message{
		serverMsg(1, 7, 0, "a"),
		serverMsg(2, 7, 5*time.Second, "b"),
		confirmed,
	})
	require.Equal(t, []string{"1", "9", "2"}, ids(store.List()))
}

func TestSnapshotEntriesPrecedeProvisionalOnEqualTime(t *testing.T) {
	lookup := newFakeLookup()
	store := NewStore(lookup)
	store.Open(7)

	require.NoError(t, store.AppendOptimistic(localMsg(1, 7, time.Second, "mine")))
	lookup.setSend(models.LocalID(1), models.MutationStatusInFlight)
	store.LoadSnapshot(7, []models.Message{
		serverMsg(3, 7, time.Second, "theirs"),
		serverMsg(4, 7, time.Second, "also theirs"),
	})

	require.Equal(t, []string{"3", "4", "local:1"}, ids(store.List()))
}

func TestRemoveConfirmed(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)
	store.LoadSnapshot(7, []models.Message{serverMsg(1, 7, 0, "a"), serverMsg(2, 7, time.Second, "b")})

	removed, err := store.RemoveConfirmed(models.ServerID(1))
	require.NoError(t, err)
	require.Equal(t, "a", removed.Content)
	require.Equal(t, []string{"2"}, ids(store.List()))

	_, err = store.RemoveConfirmed(models.ServerID(1))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.RemoveConfirmed(models.LocalID(1))
	require.ErrorIs(t, err, ErrNotConfirmed)
}

func TestListReturnsCopies(t *testing.T) {
	store := NewStore(nil)
	store.Open(7)
	msg := serverMsg(1, 7, 0, "a")
	msg.Attachments = []models.Attachment{{ID: 1, URL: "https://cdn/x.png", Kind: models.AttachmentKindImage, Name: "x.png"}}
	store.LoadSnapshot(7, []models.Message{msg})

	list := store.List()
	list[0].Attachments[0].Name = "changed"
	got, _ := store.Get(models.ServerID(1))
	require.Equal(t, "x.png", got.Attachments[0].Name)
}

func TestConfirmedPortionMatchesLatestSnapshot(t *testing.T) {
	lookup := newFakeLookup()
	store := NewStore(lookup)
	store.Open(7)

	for i := int64(1); i <= 5; i++ {
		id := models.LocalID(i)
		lookup.setSend(id, models.MutationStatusInFlight)
		require.NoError(t, store.AppendOptimistic(localMsg(i, 7, time.Duration(i)*time.Second, "p")))
	}

	snapshots := [][]models.Message{
		{serverMsg(1, 7, 0, "a")},
		{serverMsg(1, 7, 0, "a"), serverMsg(2, 7, time.Second, "b")},
		{serverMsg(2, 7, time.Second, "b"), serverMsg(3, 7, 10*time.Second, "c")},
	}
	for _, snapshot := range snapshots {
		store.LoadSnapshot(7, snapshot)
		require.Equal(t, ids(snapshot), ids(store.Confirmed()))
		require.Len(t, store.List(), len(snapshot)+5)
	}

	list := store.List()
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
}
