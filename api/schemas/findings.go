package schemas

import "strings"

// -- Finding Schemas --

// ScanKind identifies one of the two independent analysis types run against a
// repository. The string values are the wire values used by the scan engine.
type ScanKind string

const (
	ScanKindOpenSource   ScanKind = "open_source"   // Open-source dependency vulnerability scan.
	ScanKindCodeSecurity ScanKind = "code_security" // Static code-security scan.
)

// ScanKinds lists every supported kind in dispatch order.
var ScanKinds = []ScanKind{ScanKindOpenSource, ScanKindCodeSecurity}

// Valid reports whether k is a supported scan kind.
func (k ScanKind) Valid() bool {
	return k == ScanKindOpenSource || k == ScanKindCodeSecurity
}

// ParseScanKind converts a wire value into a ScanKind.
func ParseScanKind(s string) (ScanKind, bool) {
	k := ScanKind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// ScanRequest is created once per invocation of the scan engine.
type ScanRequest struct {
	RepositoryURL string   `json:"repoUrl"`
	Kind          ScanKind `json:"scanType"`
}

// Severity is the unified bucket name used across both scan kinds after
// normalization.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// -- Open-source (dependency) results --

// Vulnerability is a single dependency finding as emitted by the scan CLI.
// Only Severity matters for counting; the rest is carried for display.
type Vulnerability struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Severity     string        `json:"severity"`
	CVSSScore    float64       `json:"cvssScore,omitempty"`
	CVSSv3       string        `json:"CVSSv3,omitempty"`
	ModuleName   string        `json:"moduleName,omitempty"`
	PackageName  string        `json:"packageName,omitempty"`
	Version      string        `json:"version,omitempty"`
	Description  string        `json:"description,omitempty"`
	Identifiers  Identifiers   `json:"identifiers,omitempty"`
	References   []Reference   `json:"references,omitempty"`
	From         []string      `json:"from,omitempty"`
	UpgradePath  []interface{} `json:"upgradePath,omitempty"`
	IsUpgradable bool          `json:"isUpgradable,omitempty"`
	IsPatchable  bool          `json:"isPatchable,omitempty"`
}

// Identifiers groups the public advisory identifiers of a vulnerability.
type Identifiers struct {
	CVE  []string `json:"CVE,omitempty"`
	CWE  []string `json:"CWE,omitempty"`
	GHSA []string `json:"GHSA,omitempty"`
}

// Reference is an external advisory link.
type Reference struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// OpenSourceResult is the decoded output of an open-source dependency scan.
type OpenSourceResult struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	DependencyCount int             `json:"dependencyCount"`
	UniqueCount     int             `json:"uniqueCount"`
	ProjectName     string          `json:"projectName,omitempty"`
	PackageManager  string          `json:"packageManager,omitempty"`
	OK              bool            `json:"ok"`
}

// -- Code-security (SARIF) results --

// SARIF levels used by the static code scan.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelNote    = "note"
)

// CodeSecurityResult is the decoded SARIF 2.1.0 log emitted by the code scan.
// Only the fields needed for counting and display are modeled.
type CodeSecurityResult struct {
	Version string    `json:"version"`
	Schema  string    `json:"$schema,omitempty"`
	Runs    []CodeRun `json:"runs"`
}

// CodeRun is a single tool run inside a SARIF log.
type CodeRun struct {
	Tool    CodeTool      `json:"tool"`
	Results []CodeFinding `json:"results"`
}

// CodeTool describes the analyzer that produced a run.
type CodeTool struct {
	Driver CodeToolDriver `json:"driver"`
}

// CodeToolDriver holds tool identity and the rule catalogue.
type CodeToolDriver struct {
	Name    string     `json:"name"`
	Version string     `json:"semanticVersion,omitempty"`
	Rules   []CodeRule `json:"rules,omitempty"`
}

// CodeRule is a reporting descriptor referenced by CodeFinding.RuleID.
type CodeRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	ShortDescription *TextMessage `json:"shortDescription,omitempty"`
	Help             *TextMessage `json:"help,omitempty"`
}

// CodeFinding is a single SARIF result.
type CodeFinding struct {
	RuleID    string         `json:"ruleId"`
	Level     string         `json:"level"`
	Message   TextMessage    `json:"message"`
	Locations []CodeLocation `json:"locations,omitempty"`
}

// TextMessage is a SARIF message string.
type TextMessage struct {
	Text string `json:"text"`
}

// CodeLocation points at the source region of a finding.
type CodeLocation struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation is the file and region of a code finding.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation is the repository-relative file path.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is a line span in a file.
type Region struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// -- Statistics --

// SeverityBucket is the unified statistic shape for one scan kind. All fields
// are non-negative and their sum equals the number of recognized findings.
type SeverityBucket struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Total returns the number of counted findings in the bucket.
func (b SeverityBucket) Total() int {
	return b.High + b.Medium + b.Low
}

// Add returns the field-wise sum of two buckets.
func (b SeverityBucket) Add(o SeverityBucket) SeverityBucket {
	return SeverityBucket{
		High:   b.High + o.High,
		Medium: b.Medium + o.Medium,
		Low:    b.Low + o.Low,
	}
}

// CombinedScanStats is the per-run snapshot handed to the reconciler.
type CombinedScanStats struct {
	OpenSource   SeverityBucket `json:"openSource"`
	CodeSecurity SeverityBucket `json:"codeSecurity"`
}

// Total flattens both scan kinds into a single bucket.
func (c CombinedScanStats) Total() SeverityBucket {
	return c.OpenSource.Add(c.CodeSecurity)
}
