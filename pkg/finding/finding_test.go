package finding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/findingscope/pkg/severity"
)

var snapshotAt = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func TestDecode_EnvelopeAndArray(t *testing.T) {
	envelope := []byte(`{"findings":[{"id":"a","title":"one"},{"id":"b","title":"two"}]}`)
	res, err := Decode(envelope)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Zero(t, res.Skipped)

	array := []byte(` [{"id":"a"}, 42, "text", null, {"id":"b"}]`)
	res, err = Decode(array)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 3, res.Skipped)
}

func TestDecode_InvalidPayload(t *testing.T) {
	_, err := Decode([]byte(`<html>oops</html>`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"findings": "nope"}`))
	assert.Error(t, err)
}

func TestIngest_TolerantFields(t *testing.T) {
	res, err := Decode([]byte(`{"findings":[
		{"id":"f1","title":"S3 public","description":"d","severity":"CRITICAL","resource":"aws:s3:bucket:x","created_at":"2026-10-13T08:00:00Z"},
		{"title":"no id","description":"d","severity":"high","resource":{"arn":"x"}},
		{"id":7,"title":"numeric id","severity":"INFORMATIONAL","resource":12,"created_at":"yesterday"},
		{"id":"f1","title":"duplicate id","severity":"LOW","resource":null,"createdAt":"2026-10-12"},
		{"id":"f5","title":"llm string","severity":"MEDIUM","llm_output":"looks fine"},
		{"id":"f6","title":"llm object","severity":"MEDIUM","llm_output":{"raw":"r","interpreted":true}}
	]}`))
	require.NoError(t, err)

	findings := Ingest(res.Records, snapshotAt)
	require.Len(t, findings, 6)

	f := findings[0]
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, severity.Critical, f.Severity)
	assert.True(t, f.HasResource)
	assert.Equal(t, "aws:s3:bucket:x", f.Resource)
	assert.True(t, f.HasCreatedAt())

	f = findings[1]
	assert.Equal(t, SyntheticID(1, snapshotAt), f.ID)
	assert.Equal(t, severity.High, f.Severity)
	assert.False(t, f.HasResource, "object resource is treated as absent")

	f = findings[2]
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, severity.Unknown("INFORMATIONAL"), f.Severity)
	assert.False(t, f.HasResource)
	assert.False(t, f.HasCreatedAt(), "unparseable timestamp is treated as absent")

	f = findings[3]
	assert.Equal(t, SyntheticID(3, snapshotAt), f.ID, "duplicate ids are re-synthesized")
	assert.False(t, f.HasResource)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), f.CreatedAt)

	require.NotNil(t, findings[4].LLMAnalysis)
	assert.Equal(t, "looks fine", findings[4].LLMAnalysis.Raw)
	require.NotNil(t, findings[5].LLMAnalysis)
	assert.True(t, findings[5].LLMAnalysis.Interpreted)
}

func TestIngest_SyntheticIDsAreStable(t *testing.T) {
	records := []Record{{}, {}}
	first := Ingest(records, snapshotAt)
	second := Ingest(records, snapshotAt)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.Equal(t, "finding-0-1791970200000", first[0].ID)
}

func TestService(t *testing.T) {
	tests := []struct {
		name     string
		f        Finding
		want     string
		wantOK   bool
		segments int
	}{
		{"compound", Finding{Resource: "aws:s3:bucket:name", HasResource: true}, "s3", true, 4},
		{"two segments", Finding{Resource: "aws:iam", HasResource: true}, "iam", true, 2},
		{"single segment", Finding{Resource: "bucket", HasResource: true}, "", false, 1},
		{"empty second", Finding{Resource: "aws::x", HasResource: true}, "", false, 3},
		{"absent", Finding{}, "", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.f.Service()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
			assert.Len(t, tt.f.ResourceSegments(), tt.segments)
		})
	}
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Loaded())
	assert.Nil(t, s.Findings())

	first := NewSnapshot("test", snapshotAt, []Record{{}})
	assert.Nil(t, s.Replace(first))
	assert.Same(t, first, s.Snapshot())
	assert.Len(t, s.Findings(), 1)

	second := SampleSnapshot(snapshotAt)
	assert.Same(t, first, s.Replace(second))
	assert.Equal(t, 12, s.Snapshot().Len())
}

func TestSampleFindings(t *testing.T) {
	findings := SampleFindings(snapshotAt)
	require.Len(t, findings, 12)

	counts := map[severity.Level]int{}
	ids := map[string]bool{}
	for _, f := range findings {
		counts[f.Severity]++
		ids[f.ID] = true
		assert.True(t, f.HasResource)
		assert.True(t, f.HasCreatedAt())
	}
	for _, lvl := range severity.Known() {
		assert.Equal(t, 3, counts[lvl], lvl.Label())
	}
	assert.Len(t, ids, 12)

	assert.Equal(t, SampleSnapshot(snapshotAt).ID, SampleSnapshot(snapshotAt).ID)
	assert.True(t, SampleSnapshot(snapshotAt).Sample)
}
