package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/severity"
)

var base = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func shuffled(findings []finding.Finding, seed int64) []finding.Finding {
	out := append([]finding.Finding(nil), findings...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestComputeStats_Sample(t *testing.T) {
	got := ComputeStats(finding.SampleFindings(base))
	assert.Equal(t, Stats{Total: 12, Critical: 3, High: 3, Medium: 3, Low: 3}, got)
}

func TestComputeStats_UnknownCountsTowardTotalOnly(t *testing.T) {
	findings := []finding.Finding{
		{Severity: severity.Critical},
		{Severity: severity.Unknown("INFO")},
		{Severity: severity.Unknown("")},
	}
	got := ComputeStats(findings)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 1, got.Critical)
	assert.LessOrEqual(t, got.Critical+got.High+got.Medium+got.Low, got.Total)

	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestComputeStats_TotalIsLength(t *testing.T) {
	sample := finding.SampleFindings(base)
	for n := 0; n <= len(sample); n++ {
		assert.Equal(t, n, ComputeStats(sample[:n]).Total)
	}
	assert.Equal(t, ComputeStats(sample), ComputeStats(shuffled(sample, 7)))
}

func TestSeverityShares(t *testing.T) {
	shares := SeverityShares(Stats{Total: 3, Critical: 1, Low: 2})
	require.Len(t, shares, 2)
	assert.Equal(t, severity.Critical, shares[0].Level)
	assert.Equal(t, 33.3, shares[0].Percentage)
	assert.Equal(t, severity.Low, shares[1].Level)
	assert.Equal(t, 66.7, shares[1].Percentage)

	assert.Empty(t, SeverityShares(Stats{}))
}

func TestComputeTimeline_Sample(t *testing.T) {
	buckets := ComputeTimeline(finding.SampleFindings(base))
	require.Len(t, buckets, TimelineDays)

	// The sample spans 12 days; only the 7 most recent remain.
	assert.Equal(t, "7 Oct", buckets[0].DateLabel)
	assert.Equal(t, "13 Oct", buckets[len(buckets)-1].DateLabel)
	for i := 1; i < len(buckets); i++ {
		assert.True(t, buckets[i-1].Date.Before(buckets[i].Date), "strictly ascending")
	}
	for _, b := range buckets {
		assert.Equal(t, 1, b.Total)
		assert.Equal(t, b.Total, b.Critical+b.High+b.Medium+b.Low)
	}
}

func TestComputeTimeline_GroupsAndSkips(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC) }
	findings := []finding.Finding{
		{Severity: severity.High, CreatedAt: day(2, 9)},
		{Severity: severity.Low},
		{Severity: severity.Critical, CreatedAt: day(1, 23)},
		{Severity: severity.High, CreatedAt: day(2, 18)},
		{Severity: severity.Unknown("INFO"), CreatedAt: day(2, 1)},
	}

	buckets := ComputeTimeline(findings)
	require.Len(t, buckets, 2)
	assert.Equal(t, TimelineBucket{Date: day(1, 0), DateLabel: "1 Mar", Critical: 1, Total: 1}, buckets[0])
	assert.Equal(t, TimelineBucket{Date: day(2, 0), DateLabel: "2 Mar", High: 2, Total: 3}, buckets[1])
}

func TestComputeTimeline_SortsByDateNotLabel(t *testing.T) {
	// "10 Jan" sorts before "9 Jan" as a string.
	findings := []finding.Finding{
		{Severity: severity.Low, CreatedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
		{Severity: severity.Low, CreatedAt: time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)},
		{Severity: severity.Low, CreatedAt: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	buckets := ComputeTimeline(findings)
	require.Len(t, buckets, 3)
	assert.Equal(t, []string{"31 Dec", "9 Jan", "10 Jan"}, []string{buckets[0].DateLabel, buckets[1].DateLabel, buckets[2].DateLabel})
}

func TestComputeTimeline_OrderIndependent(t *testing.T) {
	sample := finding.SampleFindings(base)
	want := ComputeTimeline(sample)
	for seed := int64(1); seed <= 5; seed++ {
		assert.Equal(t, want, ComputeTimeline(shuffled(sample, seed)))
	}
}

func TestComputeTimeline_LocationAndLocale(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	findings := []finding.Finding{
		{Severity: severity.Low, CreatedAt: time.Date(2026, 10, 13, 22, 30, 0, 0, time.UTC)},
	}

	utc := ComputeTimeline(findings)
	require.Len(t, utc, 1)
	assert.Equal(t, "13 Oct", utc[0].DateLabel)

	shifted := ComputeTimeline(findings, InLocation(loc), WithFormatter(Turkish))
	require.Len(t, shifted, 1)
	assert.Equal(t, "14 Eki", shifted[0].DateLabel)
}

func TestFormatter(t *testing.T) {
	f, ok := Formatter("tr-TR")
	assert.True(t, ok)
	assert.Equal(t, Turkish, f)

	f, ok = Formatter("en")
	assert.True(t, ok)
	assert.Equal(t, English, f)

	_, ok = Formatter("de")
	assert.False(t, ok)
}

func TestComputeResourceDistribution(t *testing.T) {
	res := func(r string) finding.Finding { return finding.Finding{Resource: r, HasResource: true} }
	findings := []finding.Finding{
		res("aws:ec2:instance/a"),
		res("aws:s3:bucket:a"),
		{Title: "no resource"},
		res("aws:s3:bucket:b"),
		res("bucket-only"),
		res("aws:iam:user/x"),
		res("aws:rds:db"),
		res("aws:kms:key"),
		res("aws:lambda:fn"),
		res("weird"),
		res("aws:ec2:volume/v"),
		res("aws:sqs:queue"),
	}

	got := ComputeResourceDistribution(findings)
	assert.Equal(t, []ResourceBucket{
		{Service: "ec2", Count: 2},
		{Service: "s3", Count: 2},
		{Service: UnknownService, Count: 2},
		{Service: "iam", Count: 1},
		{Service: "rds", Count: 1},
		{Service: "kms", Count: 1},
	}, got)
}

func TestComputeResourceDistribution_Sample(t *testing.T) {
	sample := finding.SampleFindings(base)
	got := ComputeResourceDistribution(sample)
	require.LessOrEqual(t, len(got), TopServices)
	assert.Equal(t, ResourceBucket{Service: "iam", Count: 3}, got[0])
	assert.Equal(t, ResourceBucket{Service: "ec2", Count: 3}, got[1])
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Count, got[i].Count)
	}

	// A missing resource is skipped without affecting the rest.
	sample[0].HasResource = false
	sample[0].Resource = ""
	for _, b := range ComputeResourceDistribution(sample) {
		assert.NotEqual(t, "s3", b.Service)
	}
}

func TestComputeResourceDistribution_Empty(t *testing.T) {
	assert.Empty(t, ComputeResourceDistribution(nil))
	assert.NotNil(t, ComputeResourceDistribution(nil))
}
