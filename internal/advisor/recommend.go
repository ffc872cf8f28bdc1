package advisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/llmutil"
)

// Issue is a finding prepared for a recommendation prompt.
type Issue struct {
	RuleID      string `json:"ruleId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
	Location    string `json:"location,omitempty"`
	Help        string `json:"help,omitempty"`
}

// Recommendation is the model's advice for one Issue.
type Recommendation struct {
	Summary string              `json:"summary"`
	Steps   []string            `json:"steps,omitempty"`
	Code    []llmutil.CodeBlock `json:"code,omitempty"`
}

// CodeIssues returns one Issue per distinct rule across all runs, in order
// of first occurrence.
func CodeIssues(result *schemas.CodeSecurityResult) []Issue {
	if result == nil {
		return nil
	}
	var out []Issue
	seen := make(map[string]bool)
	for _, run := range result.Runs {
		rules := make(map[string]schemas.CodeRule, len(run.Tool.Driver.Rules))
		for _, r := range run.Tool.Driver.Rules {
			rules[r.ID] = r
		}
		for _, f := range run.Results {
			if seen[f.RuleID] {
				continue
			}
			seen[f.RuleID] = true
			out = append(out, issueFromFinding(f, rules[f.RuleID]))
		}
	}
	return out
}

func issueFromFinding(f schemas.CodeFinding, rule schemas.CodeRule) Issue {
	is := Issue{
		RuleID:      f.RuleID,
		Title:       f.RuleID,
		Description: f.Message.Text,
		Severity:    f.Level,
	}
	if rule.ShortDescription != nil && rule.ShortDescription.Text != "" {
		is.Title = rule.ShortDescription.Text
	}
	if rule.Help != nil {
		is.Help = rule.Help.Text
	}
	if len(f.Locations) > 0 {
		pl := f.Locations[0].PhysicalLocation
		is.Location = fmt.Sprintf("%s:%d", pl.ArtifactLocation.URI, pl.Region.StartLine)
	}
	return is
}

// DependencyIssue converts an open-source vulnerability into an Issue.
func DependencyIssue(v schemas.Vulnerability) Issue {
	loc := v.PackageName
	if v.Version != "" {
		loc += "@" + v.Version
	}
	return Issue{
		RuleID:      v.ID,
		Title:       v.Title,
		Description: v.Description,
		Severity:    strings.ToLower(v.Severity),
		Location:    loc,
	}
}

// Recommend asks the model how to remediate an issue. A response that is not
// the requested JSON is kept as the summary with its code blocks extracted.
func (a *Advisor) Recommend(ctx context.Context, issue Issue) (*Recommendation, error) {
	if issue.Title == "" && issue.RuleID == "" {
		return nil, fmt.Errorf("%w: issue has no title or rule", schemas.ErrMalformedInput)
	}
	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: recommendSystemPrompt,
		UserPrompt:   recommendPrompt(issue),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation generation failed: %w", err)
	}

	rec, err := llmutil.ParseJSONResponse[Recommendation](raw)
	if err != nil || rec.Summary == "" {
		a.logger.Debug("Recommendation was not structured; using raw text", zap.String("rule", issue.RuleID))
		return &Recommendation{Summary: strings.TrimSpace(raw), Code: llmutil.ExtractCodeBlocks(raw)}, nil
	}
	return rec, nil
}

func recommendPrompt(is Issue) string {
	var b strings.Builder
	b.WriteString("Recommend how to fix the following security finding.\n\n")
	fmt.Fprintf(&b, "**Title:** %s\n", is.Title)
	if is.RuleID != "" {
		fmt.Fprintf(&b, "**Rule:** %s\n", is.RuleID)
	}
	fmt.Fprintf(&b, "**Severity:** %s\n", is.Severity)
	if is.Location != "" {
		fmt.Fprintf(&b, "**Location:** %s\n", is.Location)
	}
	if is.Description != "" {
		fmt.Fprintf(&b, "**Details:** %s\n", is.Description)
	}
	if is.Help != "" {
		fmt.Fprintf(&b, "\n**Rule guidance:**\n%s\n", is.Help)
	}
	b.WriteString(`
**Response Format (Strict JSON):**
{
  "summary": "One paragraph explaining the risk and the fix.",
  "steps": ["Ordered remediation steps."],
  "code": [{"language": "go", "code": "Corrected code, if applicable."}]
}
`)
	return b.String()
}
