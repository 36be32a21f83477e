package finding

import (
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/findingscope/pkg/severity"
)

// SampleSource is the Snapshot.Source of the built-in dataset.
const SampleSource = "builtin:sample"

// sampleNamespace seeds the snapshot ID of the built-in dataset.
var sampleNamespace = uuid.MustParse("6f1c2a8e-5b1d-4d0e-9a57-3c1f0b7d2e41")

type sampleEntry struct {
	id, title, description string
	level                  severity.Level
	resource               string
	analysis               string
	daysAgo                int
}

// The built-in dataset installed when the first fetch fails: 12 AWS
// findings, three per known severity, created one day apart.
var sampleEntries = []sampleEntry{
	{
		id:          "finding-1",
		title:       "S3 Bucket Publicly Accessible",
		description: `S3 bucket "company-data" allows public read access. Anyone on the internet can list and download objects, exposing sensitive data to unauthorized users.`,
		level:       severity.Critical,
		resource:    "aws:s3:bucket:company-data",
		analysis:    "Yes, this is a real exposure. Block public access on the bucket, review the bucket policy and audit the objects for sensitive data.",
		daysAgo:     1,
	},
	{
		id:          "finding-2",
		title:       "IAM User Over-Privileged",
		description: `User "developer1" has administrator access, which breaks the least privilege principle. The user only needs access to development resources.`,
		level:       severity.High,
		resource:    "aws:iam:user/developer1",
		analysis:    "Scope the user down to the development resources it needs.",
		daysAgo:     2,
	},
	{
		id:          "finding-3",
		title:       "Database Backups Not Encrypted",
		description: "RDS database backups are stored without encryption. If backup storage is compromised, customer personal data would be exposed.",
		level:       severity.Medium,
		resource:    "aws:rds:instance:prod-db",
		analysis:    "Enable encryption for snapshots; personal data requires it for compliance.",
		daysAgo:     3,
	},
	{
		id:          "finding-4",
		title:       "CloudTrail Logging Disabled",
		description: "CloudTrail logging is turned off for the account, which limits audit capability and incident response. API calls and user activity are not recorded.",
		level:       severity.High,
		resource:    "aws:cloudtrail:trail/main-trail",
		analysis:    "Turn CloudTrail back on; every account needs an audit trail.",
		daysAgo:     4,
	},
	{
		id:          "finding-5",
		title:       "Weak Password Policy",
		description: "The IAM password policy does not enforce enough complexity. Passwords shorter than 8 characters and without symbols are allowed.",
		level:       severity.Medium,
		resource:    "aws:iam:account-password-policy",
		analysis:    "Require at least 12 characters, symbols and 90 day rotation.",
		daysAgo:     5,
	},
	{
		id:          "finding-6",
		title:       "Security Group Too Permissive",
		description: `Security group "web-servers" accepts traffic on ports 22 (SSH) and 3389 (RDP) from any IP address, creating a large attack surface.`,
		level:       severity.Critical,
		resource:    "aws:ec2:security-group/sg-web-servers",
		analysis:    "Restrict SSH and RDP to known address ranges immediately.",
		daysAgo:     6,
	},
	{
		id:          "finding-7",
		title:       "Root Account Access Key Active",
		description: "The AWS root account has active access keys. The root account should only be used for account management tasks.",
		level:       severity.High,
		resource:    "aws:iam:root-account",
		analysis:    "Delete the root access keys and enable MFA on the root user.",
		daysAgo:     7,
	},
	{
		id:          "finding-8",
		title:       "EBS Volumes Not Encrypted",
		description: "Several EBS volumes store data at rest without encryption. The volumes hold application logs and temporary files.",
		level:       severity.Low,
		resource:    "aws:ec2:volume/vol-123456789",
		analysis:    "Low risk for log data, but encryption at rest is recommended.",
		daysAgo:     8,
	},
	{
		id:          "finding-9",
		title:       "Lambda Function Over-Privileged",
		description: `Lambda function "data-processor" has full S3 access while it only needs read access to a few buckets.`,
		level:       severity.Medium,
		resource:    "aws:lambda:function:data-processor",
		analysis:    "Grant read-only access to the specific buckets it uses.",
		daysAgo:     9,
	},
	{
		id:          "finding-10",
		title:       "API Gateway Without Rate Limiting",
		description: "The API Gateway endpoint has no rate limiting configured, leaving it open to DDoS attacks and abuse.",
		level:       severity.Critical,
		resource:    "aws:apigateway:rest-api/user-api",
		analysis:    "Configure throttling on the stage and usage plans for API keys.",
		daysAgo:     10,
	},
	{
		id:          "finding-11",
		title:       "EC2 Instance Metadata v1 In Use",
		description: "EC2 instances still accept the legacy metadata service v1, which makes SSRF attacks easier.",
		level:       severity.Low,
		resource:    "aws:ec2:instance/i-0123456789abcdef0",
		analysis:    "Require IMDSv2 tokens on all instances.",
		daysAgo:     11,
	},
	{
		id:          "finding-12",
		title:       "KMS Key Rotation Disabled",
		description: "Automatic rotation is not enabled for KMS keys. Using the same key for a long time increases risk.",
		level:       severity.Low,
		resource:    "aws:kms:key/12345678-1234-1234-1234-123456789012",
		analysis:    "Enable yearly automatic rotation.",
		daysAgo:     12,
	},
}

// SampleFindings returns the built-in dataset with creation times counted
// back from base.
func SampleFindings(base time.Time) []Finding {
	findings := make([]Finding, 0, len(sampleEntries))
	for _, e := range sampleEntries {
		findings = append(findings, Finding{
			ID:          e.id,
			Title:       e.title,
			Description: e.description,
			Severity:    e.level,
			Resource:    e.resource,
			HasResource: true,
			CreatedAt:   base.Add(-time.Duration(e.daysAgo) * 24 * time.Hour),
			LLMAnalysis: &LLMAnalysis{Raw: e.analysis},
		})
	}
	return findings
}

// SampleSnapshot wraps SampleFindings in a snapshot marked as sample data.
func SampleSnapshot(base time.Time) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewSHA1(sampleNamespace, []byte(base.UTC().Format(time.RFC3339Nano))),
		Source:    SampleSource,
		FetchedAt: base,
		Findings:  SampleFindings(base),
		Sample:    true,
	}
}
