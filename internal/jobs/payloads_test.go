package jobs

import (
	"encoding/json"
	"testing"

	"crmforge/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	datasetID := uuid.New()
	original := &GenerationPayload{
		DatasetID: datasetID,
		Counts:    map[store.ObjectType]int{store.ObjectAccount: 3, store.ObjectContact: 9},
		Scenario:  "fast_sales_cycle",
	}

	raw, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(store.JobTypeGeneration, raw)
	require.NoError(t, err)

	gen, ok := decoded.(*GenerationPayload)
	require.True(t, ok, "decoded %T, want *GenerationPayload", decoded)
	assert.Equal(t, original, gen)
}

func TestDecode_VariantMatchesJobType(t *testing.T) {
	cases := []struct {
		jobType store.JobType
		want    Payload
	}{
		{store.JobTypeGeneration, &GenerationPayload{}},
		{store.JobTypeInjection, &InjectionPayload{}},
		{store.JobTypeCleanup, &CleanupPayload{}},
		{store.JobTypeSnapshotCreate, &SnapshotCreatePayload{}},
		{store.JobTypeSnapshotRestore, &SnapshotRestorePayload{}},
	}
	for _, tc := range cases {
		decoded, err := Decode(tc.jobType, json.RawMessage(`{}`))
		require.NoError(t, err, tc.jobType)
		assert.IsType(t, tc.want, decoded, tc.jobType)
		assert.Equal(t, tc.jobType, decoded.JobType())
	}
}

func TestDecode_UnknownJobType(t *testing.T) {
	_, err := Decode(store.JobType("mystery"), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(store.JobTypeInjection, json.RawMessage(`{not json`))
	require.Error(t, err)
}

func TestSnapshotRestorePayload_PurgeDefaultsFalseOnEmptyBody(t *testing.T) {
	decoded, err := Decode(store.JobTypeSnapshotRestore, json.RawMessage(`{"snapshot_id":"`+uuid.Nil.String()+`"}`))
	require.NoError(t, err)

	restore := decoded.(*SnapshotRestorePayload)
	assert.False(t, restore.Purge)
}
