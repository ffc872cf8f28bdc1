// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "CodeShield"
	ToolInfoURI  = "https://github.com/codeshield-25/codeshield-web"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer collapses anything outside [A-Za-z0-9_.] into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter writes one SARIF run per session. Dependency vulnerabilities
// and code findings share the run, with rule ids prefixed by their source.
// It is safe for concurrent use.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	mu     sync.Mutex
	// ruleIDUsage counts sanitized ids per run so distinct source ids that
	// sanitize identically get a suffix.
	ruleIDUsage map[string]int
	rulesBySrc  map[string]string
	version     string
}

// NewSARIFReporter creates a reporter that owns writer.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	return &SARIFReporter{
		writer:  writer,
		logger:  observability.GetLogger().Named("sarif_reporter"),
		log:     &sarif.Log{Version: SARIFVersion, Schema: SARIFSchema, Runs: []*sarif.Run{}},
		version: toolVersion,
	}
}

// Write converts a session into a SARIF run.
func (r *SARIFReporter) Write(snap *schemas.SessionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil session snapshot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ruleIDUsage = make(map[string]int)
	r.rulesBySrc = make(map[string]string)

	props := sarif.PropertyBag{
		"repositoryUrl": snap.RepositoryURL,
		"state":         string(snap.State),
	}
	if snap.TeamID != "" {
		props["teamId"] = snap.TeamID
	}
	if snap.Stats != nil {
		props["stats"] = snap.Stats
	}
	if snap.Error != "" {
		props["error"] = snap.Error
	}

	run := &sarif.Run{
		Tool: &sarif.Tool{Driver: &sarif.ToolComponent{
			Name:           ToolName,
			Version:        pString(r.version),
			InformationURI: pString(ToolInfoURI),
			Rules:          []*sarif.ReportingDescriptor{},
		}},
		Results: []*sarif.Result{},
		Invocations: []*sarif.Invocation{{
			ExecutionSuccessful: snap.State == schemas.StateCompleted,
			EndTimeUTC:          snap.UpdatedAt.UTC().Format(time.RFC3339),
		}},
		Properties: &props,
	}

	if snap.OpenSource != nil {
		for _, v := range snap.OpenSource.Vulnerabilities {
			r.addDependencyResult(run, v)
		}
	}
	if snap.CodeSecurity != nil {
		for _, cr := range snap.CodeSecurity.Runs {
			rules := make(map[string]schemas.CodeRule, len(cr.Tool.Driver.Rules))
			for _, rule := range cr.Tool.Driver.Rules {
				rules[rule.ID] = rule
			}
			for _, f := range cr.Results {
				r.addCodeResult(run, f, rules[f.RuleID])
			}
		}
	}

	r.log.Runs = append(r.log.Runs, run)
	r.logger.Debug("Added session to SARIF report",
		zap.String("repository", snap.RepositoryURL),
		zap.Int("results", len(run.Results)),
		zap.Int("rules", len(run.Tool.Driver.Rules)),
	)
	return nil
}

func (r *SARIFReporter) addDependencyResult(run *sarif.Run, v schemas.Vulnerability) {
	ruleID := r.ensureRule(run, "OSS", v.ID, func(id string) *sarif.ReportingDescriptor {
		help := fmt.Sprintf("**Package:** %s\n\n**Vulnerability:** %s", v.PackageName, v.Title)
		if v.IsUpgradable {
			help += "\n\nAn upgrade path is available."
		}
		props := sarif.PropertyBag{"tags": []string{"security", "dependency"}}
		if len(v.Identifiers.CWE) > 0 {
			props["CWE"] = v.Identifiers.CWE
		}
		if len(v.Identifiers.CVE) > 0 {
			props["CVE"] = v.Identifiers.CVE
		}
		if v.CVSSScore > 0 {
			props["security-severity"] = fmt.Sprintf("%.1f", v.CVSSScore)
		}
		return &sarif.ReportingDescriptor{
			ID:               id,
			Name:             pString(v.Title),
			ShortDescription: &sarif.MultiformatMessageString{Text: pString(v.Title)},
			FullDescription:  &sarif.MultiformatMessageString{Text: pString(firstLine(v.Description))},
			Help:             &sarif.MultiformatMessageString{Text: pString(v.Title), Markdown: pString(help)},
			Properties:       &props,
		}
	})

	target := v.PackageName
	if v.Version != "" {
		target += "@" + v.Version
	}
	msg := fmt.Sprintf("%s in %s", v.Title, target)
	if len(v.From) > 1 {
		msg += fmt.Sprintf(" (introduced through %s)", strings.Join(v.From, " > "))
	}
	run.Results = append(run.Results, &sarif.Result{
		RuleID:  ruleID,
		Message: &sarif.Message{Text: pString(msg)},
		Level:   severityLevel(v.Severity),
		Locations: []*sarif.Location{{
			PhysicalLocation: &sarif.PhysicalLocation{
				ArtifactLocation: &sarif.ArtifactLocation{URI: pString(target)},
			},
		}},
		Properties: &sarif.PropertyBag{"severity": strings.ToLower(v.Severity)},
	})
}

func (r *SARIFReporter) addCodeResult(run *sarif.Run, f schemas.CodeFinding, rule schemas.CodeRule) {
	ruleID := r.ensureRule(run, "CODE", f.RuleID, func(id string) *sarif.ReportingDescriptor {
		name := f.RuleID
		if rule.ShortDescription != nil && rule.ShortDescription.Text != "" {
			name = rule.ShortDescription.Text
		}
		d := &sarif.ReportingDescriptor{
			ID:               id,
			Name:             pString(name),
			ShortDescription: &sarif.MultiformatMessageString{Text: pString(name)},
			Properties:       &sarif.PropertyBag{"tags": []string{"security", "code"}, "sourceRuleId": f.RuleID},
		}
		if rule.Help != nil && rule.Help.Text != "" {
			d.Help = &sarif.MultiformatMessageString{Text: pString(rule.Help.Text)}
		}
		return d
	})

	level := sarif.Level(f.Level)
	switch level {
	case sarif.LevelError, sarif.LevelWarning, sarif.LevelNote:
	default:
		level = sarif.LevelNote
	}

	res := &sarif.Result{
		RuleID:  ruleID,
		Message: &sarif.Message{Text: pString(f.Message.Text)},
		Level:   level,
	}
	for _, loc := range f.Locations {
		pl := loc.PhysicalLocation
		out := &sarif.PhysicalLocation{ArtifactLocation: &sarif.ArtifactLocation{URI: pString(pl.ArtifactLocation.URI)}}
		if pl.Region.StartLine > 0 {
			out.Region = &sarif.Region{StartLine: pl.Region.StartLine, EndLine: pl.Region.EndLine}
		}
		res.Locations = append(res.Locations, &sarif.Location{PhysicalLocation: out})
	}
	run.Results = append(run.Results, res)
}

// ensureRule returns the rule id for a source id, registering the rule on
// first use. Must be called with the mutex held.
func (r *SARIFReporter) ensureRule(run *sarif.Run, prefix, sourceID string, build func(id string) *sarif.ReportingDescriptor) string {
	key := prefix + "\x00" + sourceID
	if id, ok := r.rulesBySrc[key]; ok {
		return id
	}

	base := "CODESHIELD-" + prefix + "-" + sanitizeRuleName(sourceID)
	n := r.ruleIDUsage[base]
	r.ruleIDUsage[base] = n + 1
	id := base
	if n > 0 {
		id = fmt.Sprintf("%s-%d", base, n)
		r.logger.Debug("Rule ID collision detected", zap.String("base_id", base), zap.String("final_id", id))
	}

	run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, build(id))
	r.rulesBySrc[key] = id
	return id
}

// Close writes the SARIF log and closes the writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Successfully wrote SARIF report", zap.Int("runs", len(r.log.Runs)))
	return nil
}

func sanitizeRuleName(name string) string {
	s := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// severityLevel maps a dependency severity to a SARIF level.
func severityLevel(severity string) sarif.Level {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return sarif.LevelError
	case "medium":
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func pString(s string) *string {
	return &s
}
