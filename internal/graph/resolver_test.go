package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"crmforge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(localID string, objectType store.ObjectType, parent string) store.DatasetRecord {
	r := store.DatasetRecord{LocalID: localID, ObjectType: objectType}
	if parent != "" {
		r.ParentLocalID = &parent
	}
	return r
}

func position(t *testing.T, order []string, localID string) int {
	t.Helper()
	for i, id := range order {
		if id == localID {
			return i
		}
	}
	t.Fatalf("local id %s missing from order %v", localID, order)
	return -1
}

func TestResolve_ParentBeforeChild(t *testing.T) {
	records := []store.DatasetRecord{
		rec("task-000001", store.ObjectTask, "oppty-000001"),
		rec("oppty-000001", store.ObjectOpportunity, "acct-000001"),
		rec("cont-000001", store.ObjectContact, "acct-000001"),
		rec("acct-000001", store.ObjectAccount, ""),
	}

	order, err := Resolve(records)
	require.NoError(t, err)
	require.Len(t, order, 4)

	assert.Less(t, position(t, order, "acct-000001"), position(t, order, "cont-000001"))
	assert.Less(t, position(t, order, "acct-000001"), position(t, order, "oppty-000001"))
	assert.Less(t, position(t, order, "oppty-000001"), position(t, order, "task-000001"))
}

func TestResolve_Deterministic(t *testing.T) {
	// No edges between the two account subtrees; precedence and local ID
	// break the ties the same way every run.
	records := []store.DatasetRecord{
		rec("acct-000002", store.ObjectAccount, ""),
		rec("acct-000001", store.ObjectAccount, ""),
		rec("cont-000002", store.ObjectContact, "acct-000002"),
		rec("cont-000001", store.ObjectContact, "acct-000001"),
		rec("evt-000001", store.ObjectEvent, "acct-000001"),
	}

	first, err := Resolve(records)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		// Shuffle input; map iteration order varies on its own too.
		rng := rand.New(rand.NewSource(int64(i)))
		shuffled := make([]store.DatasetRecord, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		order, err := Resolve(shuffled)
		require.NoError(t, err)
		assert.Equal(t, first, order)
	}

	// Accounts sort before contacts, contacts before events.
	assert.Equal(t, []string{"acct-000001", "acct-000002", "cont-000001", "cont-000002", "evt-000001"}, first)
}

func TestResolve_RandomForestProperty(t *testing.T) {
	// Random forests never violate the parent-before-child guarantee.
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(40)
		records := make([]store.DatasetRecord, 0, n)
		parents := make(map[string]string, n)

		records = append(records, rec("acct-000001", store.ObjectAccount, ""))
		for i := 2; i <= n; i++ {
			id := fmt.Sprintf("cont-%06d", i)
			// Parent is any earlier record, so the graph stays acyclic.
			parentIdx := rng.Intn(len(records))
			parent := records[parentIdx].LocalID
			records = append(records, rec(id, store.ObjectContact, parent))
			parents[id] = parent
		}

		order, err := Resolve(records)
		require.NoError(t, err)
		require.Len(t, order, n)

		for child, parent := range parents {
			assert.Less(t, position(t, order, parent), position(t, order, child),
				"trial %d: parent %s must precede child %s", trial, parent, child)
		}
	}
}

func TestResolve_Cycle(t *testing.T) {
	records := []store.DatasetRecord{
		rec("acct-000001", store.ObjectAccount, ""),
		rec("cont-000001", store.ObjectContact, "cont-000002"),
		rec("cont-000002", store.ObjectContact, "cont-000001"),
	}

	_, err := Resolve(records)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"cont-000001", "cont-000002"}, cycleErr.Members)
}

func TestResolve_SelfReference(t *testing.T) {
	records := []store.DatasetRecord{
		rec("acct-000001", store.ObjectAccount, "acct-000001"),
	}

	_, err := Resolve(records)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"acct-000001"}, cycleErr.Members)
}

func TestResolve_CycleDescendantsReported(t *testing.T) {
	// A record below a cycle never resolves either.
	records := []store.DatasetRecord{
		rec("oppty-000001", store.ObjectOpportunity, "oppty-000002"),
		rec("oppty-000002", store.ObjectOpportunity, "oppty-000001"),
		rec("task-000001", store.ObjectTask, "oppty-000001"),
	}

	_, err := Resolve(records)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"oppty-000001", "oppty-000002", "task-000001"}, cycleErr.Members)
}

func TestResolve_DanglingReference(t *testing.T) {
	records := []store.DatasetRecord{
		rec("cont-000001", store.ObjectContact, "acct-000099"),
	}

	_, err := Resolve(records)
	var danglingErr *DanglingReferenceError
	require.ErrorAs(t, err, &danglingErr)
	assert.Equal(t, "cont-000001", danglingErr.LocalID)
	assert.Equal(t, "acct-000099", danglingErr.Parent)
}

func TestResolve_DuplicateLocalID(t *testing.T) {
	records := []store.DatasetRecord{
		rec("acct-000001", store.ObjectAccount, ""),
		rec("acct-000001", store.ObjectAccount, ""),
	}

	_, err := Resolve(records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate local id")
}

func TestResolve_Empty(t *testing.T) {
	order, err := Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, order)
}
