package chatclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(id, clientID, user, body string, ts Millis) Message {
	return Message{ID: id, ClientID: clientID, Username: user, Body: body, Timestamp: ts}
}

func TestReconcileConfirmsOptimisticEntry(t *testing.T) {
	optimistic := msg("", "c1", "alice", "hi", 1000)
	optimistic.Local = true
	list, outcome := Reconcile(nil, optimistic)
	require.Equal(t, Appended, outcome)
	require.Len(t, list, 1)
	require.True(t, list[0].Local)

	echo := msg("s1", "c1", "alice", "hi", 1000)
	list, outcome = Reconcile(list, echo)
	require.Equal(t, Confirmed, outcome)
	require.Len(t, list, 1)
	require.Equal(t, "s1", list[0].ID)
	require.False(t, list[0].Local)
}

func TestReconcileConfirmationPreservesPosition(t *testing.T) {
	list := []Message{
		msg("s1", "", "bob", "first", 100),
		{ClientID: "c2", Username: "alice", Body: "second", Timestamp: 200, Local: true},
		msg("s3", "", "bob", "third", 300),
	}
	confirmed := msg("s2", "c2", "alice", "second", 205)
	out, outcome := Reconcile(list, confirmed)
	require.Equal(t, Confirmed, outcome)
	require.Len(t, out, 3)
	require.Equal(t, "s2", out[1].ID)
	require.Equal(t, "s1", out[0].ID)
	require.Equal(t, "s3", out[2].ID)
}

func TestReconcileHTTPResponseAndEchoRace(t *testing.T) {
	// Echo arrives before the HTTP response; the end state must be a
	// single confirmed entry either way.
	optimistic := Message{ClientID: "c1", Username: "alice", Body: "hi", Timestamp: 0, Local: true}
	list, _ := Reconcile(nil, optimistic)

	echo := msg("s1", "c1", "alice", "hi", 30)
	response := msg("s1", "c1", "alice", "hi", 30)

	list, _ = Reconcile(list, echo)
	list, _ = Reconcile(list, response)
	require.Len(t, list, 1)
	require.Equal(t, "s1", list[0].ID)
	require.False(t, list[0].Local)
}

func TestReconcileDiscardsDuplicateServerID(t *testing.T) {
	list, _ := Reconcile(nil, msg("s1", "", "alice", "hi", 1000))
	out, outcome := Reconcile(list, msg("s1", "", "alice", "hi", 9000))
	require.Equal(t, DuplicateID, outcome)
	require.Len(t, out, 1)
}

func TestReconcileFuzzyDuplicateWindow(t *testing.T) {
	base := msg("s1", "", "alice", "hi", 10000)

	for _, delta := range []Millis{-5000, -1, 0, 1, 5000} {
		list, _ := Reconcile(nil, base)
		dup := msg("s2", "", "alice", "hi", base.Timestamp+delta)
		out, outcome := Reconcile(list, dup)
		require.Equal(t, DuplicateFuzzy, outcome, "delta %d", delta)
		require.Len(t, out, 1, "delta %d", delta)
	}

	for _, delta := range []Millis{-5001, 5001} {
		list, _ := Reconcile(nil, base)
		distinct := msg("s2", "", "alice", "hi", base.Timestamp+delta)
		out, outcome := Reconcile(list, distinct)
		require.Equal(t, Appended, outcome, "delta %d", delta)
		require.Len(t, out, 2, "delta %d", delta)
	}
}

func TestReconcileFuzzyRequiresSameSenderAndBody(t *testing.T) {
	list, _ := Reconcile(nil, msg("s1", "", "alice", "hi", 1000))

	out, outcome := Reconcile(list, msg("s2", "", "bob", "hi", 1000))
	require.Equal(t, Appended, outcome)
	require.Len(t, out, 2)

	out, outcome = Reconcile(list, msg("s2", "", "alice", "hello", 1000))
	require.Equal(t, Appended, outcome)
	require.Len(t, out, 2)
}

func TestReconcileClientIDBeatsFuzzyMatch(t *testing.T) {
	// The incoming echo fuzzy-matches bob's entry but carries alice's
	// client id; the exact match must win so alice's optimistic entry
	// is the one replaced.
	list := []Message{
		msg("s1", "", "alice", "same text", 1000),
		{ClientID: "c2", Username: "alice", Body: "same text", Timestamp: 8000, Local: true},
	}
	echo := msg("s2", "c2", "alice", "same text", 8000)
	out, outcome := Reconcile(list, echo)
	require.Equal(t, Confirmed, outcome)
	require.Len(t, out, 2)
	require.Equal(t, "s2", out[1].ID)
	require.False(t, out[1].Local)
}

func TestReconcileTrimsToCapacity(t *testing.T) {
	var list []Message
	for i := 0; i < RoomCapacity+1; i++ {
		m := msg(fmt.Sprintf("s%d", i), "", "alice", fmt.Sprintf("msg %d", i), Millis(i)*60000)
		list, _ = Reconcile(list, m)
	}
	require.Len(t, list, RoomCapacity)
	require.Equal(t, "s1", list[0].ID)
	require.Equal(t, fmt.Sprintf("s%d", RoomCapacity), list[RoomCapacity-1].ID)
	for i := 1; i < len(list); i++ {
		require.Less(t, int64(list[i-1].Timestamp), int64(list[i].Timestamp))
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	list := []Message{msg("s1", "", "alice", "hi", 1000)}
	_, _ = Reconcile(list, msg("s2", "", "bob", "yo", 2000))
	require.Len(t, list, 1)
}
