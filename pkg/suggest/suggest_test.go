package suggest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/search"
	"github.com/exploopio/findingscope/pkg/severity"
)

var base = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type row struct {
	kind  Kind
	text  string
	count int
}

func rows(list []Suggestion) []row {
	out := make([]row, len(list))
	for i, s := range list {
		out[i] = row{kind: s.Kind, text: s.Text, count: s.Count}
	}
	return out
}

func TestSuggest_EmptyQuery(t *testing.T) {
	sample := finding.SampleFindings(base)
	idx := search.Build(sample)

	got := Suggest("  ", sample, idx, []string{"iam", "s3", "iam", " ", "ec2", "rds"})
	assert.Equal(t, []row{
		{KindRecent, "iam", 0},
		{KindRecent, "s3", 0},
		{KindRecent, "ec2", 0},
		{KindCategory, "CRITICAL", 3},
		{KindCategory, "HIGH", 3},
		{KindCategory, "MEDIUM", 3},
		{KindCategory, "LOW", 3},
		{KindCategory, "S3", 1},
		{KindCategory, "IAM", 3},
	}, rows(got))

	for _, s := range got[3:] {
		assert.True(t, s.HasCount)
	}
}

func TestSuggest_EmptyQueryOmitsZeroFacets(t *testing.T) {
	findings := []finding.Finding{
		{ID: "a", Title: "t", Severity: severity.Critical},
		{ID: "b", Title: "u", Severity: severity.Unknown("INFO"), Resource: "aws:iam:role/x", HasResource: true},
	}
	got := Suggest("", findings, search.Build(findings), nil)
	assert.Equal(t, []row{
		{KindCategory, "CRITICAL", 1},
		{KindCategory, "IAM", 1},
	}, rows(got))

	assert.Empty(t, Suggest("", nil, search.Build(nil), nil))
}

func TestSuggest_Query(t *testing.T) {
	sample := finding.SampleFindings(base)
	idx := search.Build(sample)

	got := Suggest("s3", sample, idx, []string{"ignored"})
	require.Len(t, got, 3)
	assert.Equal(t, KindFinding, got[0].Kind)
	assert.Equal(t, "finding-1", got[0].Finding.ID)
	assert.Equal(t, "S3 Bucket Publicly Accessible", got[0].Text)
	require.NotNil(t, got[0].Highlight)
	assert.Equal(t, "finding-9", got[1].Finding.ID)
	assert.Equal(t, row{KindCategory, "S3", 1}, rows(got)[2])
}

func TestSuggest_FindingsBeforeCategories(t *testing.T) {
	sample := finding.SampleFindings(base)
	got := Suggest("high", sample, search.Build(sample), nil)
	require.NotEmpty(t, got)

	var ids []string
	for _, s := range got {
		if s.Kind == KindFinding {
			ids = append(ids, s.Finding.ID)
		}
	}
	require.GreaterOrEqual(t, len(ids), 3)
	assert.LessOrEqual(t, len(ids), MaxFindings)
	assert.Equal(t, []string{"finding-2", "finding-4", "finding-7"}, ids[:3])

	last := got[len(got)-1]
	assert.Equal(t, row{KindCategory, "HIGH", 3}, row{last.Kind, last.Text, last.Count})
	for _, s := range got[:len(ids)] {
		assert.Equal(t, KindFinding, s.Kind)
	}
}

func TestSuggest_CategoryNeedsLiveCount(t *testing.T) {
	findings := []finding.Finding{{ID: "a", Title: "Trail off", Severity: severity.Low, Resource: "aws:cloudtrail:trail/x", HasResource: true}}

	got := Suggest("trail", findings, search.Build(findings), nil)
	require.Len(t, got, 2)
	assert.Equal(t, row{KindCategory, "CloudTrail", 1}, rows(got)[1])

	assert.Empty(t, Suggest("rds", findings, search.Build(findings), nil))
}

func TestResolve(t *testing.T) {
	f := finding.Finding{ID: "x", Title: "Root Account Access Key Active"}
	assert.Equal(t, "Root Account Access Key Active", Resolve(Suggestion{Kind: KindFinding, Text: "stale", Finding: &f}))
	assert.Equal(t, "CRITICAL", Resolve(Suggestion{Kind: KindCategory, Text: "CRITICAL"}))
	assert.Equal(t, "s3", Resolve(Suggestion{Kind: KindRecent, Text: "s3"}))
}

func TestCursor(t *testing.T) {
	list := []Suggestion{
		{Kind: KindRecent, Text: "iam"},
		{Kind: KindCategory, Text: "CRITICAL"},
		{Kind: KindCategory, Text: "S3"},
	}
	c := NewCursor(len(list))
	assert.Equal(t, -1, c.Pos())
	assert.Equal(t, "raw", c.Submit("raw", list))

	assert.Equal(t, 0, c.Next())
	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 2, c.Next())
	assert.Equal(t, 0, c.Next())
	assert.Equal(t, 2, c.Prev())
	assert.Equal(t, "S3", c.Submit("raw", list))

	c.Reset(len(list))
	assert.Equal(t, -1, c.Pos())
	assert.Equal(t, 2, c.Prev())

	c.Reset(0)
	assert.Equal(t, -1, c.Next())
	assert.Equal(t, -1, c.Prev())
	assert.Equal(t, "typed", c.Submit("typed", nil))
}
