package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/llmutil"
	"github.com/codeshield-25/codeshield-web/internal/mocks"
)

func setup() (*Advisor, *mocks.MockLLMClient) {
	llm := new(mocks.MockLLMClient)
	return New(zap.NewNop(), llm), llm
}

func TestRewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("fenced response", func(t *testing.T) {
		a, llm := setup()
		code := "eval(userInput)"
		llm.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return r.UserPrompt == RewritePrefix+code && r.Tier == schemas.TierPowerful
		})).Return("```javascript\nJSON.parse(userInput)\n```\nUse JSON.parse instead.", nil).Once()

		out, err := a.Rewrite(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "javascript", out.Language)
		assert.Equal(t, "JSON.parse(userInput)", out.Code)
		llm.AssertExpectations(t)
	})

	t.Run("unfenced response falls back to detected language", func(t *testing.T) {
		a, llm := setup()
		llm.On("Generate", ctx, mock.Anything).Return("  import os\nos.getcwd()\n", nil).Once()

		out, err := a.Rewrite(ctx, "import os")
		require.NoError(t, err)
		assert.Equal(t, "python", out.Language)
		assert.Equal(t, "import os\nos.getcwd()", out.Code)
	})

	t.Run("empty input", func(t *testing.T) {
		a, llm := setup()
		_, err := a.Rewrite(ctx, " \n")
		assert.ErrorIs(t, err, schemas.ErrMalformedInput)
		llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("generation error", func(t *testing.T) {
		a, llm := setup()
		llm.On("Generate", ctx, mock.Anything).Return("", errors.New("quota")).Once()
		_, err := a.Rewrite(ctx, "x")
		assert.ErrorContains(t, err, "rewrite generation failed: quota")
	})
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "python", DetectLanguage("def main():\n  pass"))
	assert.Equal(t, "java", DetectLanguage("public class App {}"))
	assert.Equal(t, "javascript", DetectLanguage("const x = 1"))
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	a, llm := setup()
	llm.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
		return r.Tier == schemas.TierFast && r.SystemPrompt != "" && r.UserPrompt == "What is XSS?"
	})).Return("Cross-site scripting.\n```html\n<b>x</b>\n```", nil).Once()

	ans, err := a.Query(ctx, "What is XSS?")
	require.NoError(t, err)
	require.Len(t, ans.Segments, 2)
	assert.Equal(t, "html", ans.Segments[1].Code.Language)

	_, err = a.Query(ctx, "")
	assert.ErrorIs(t, err, schemas.ErrMalformedInput)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	a, llm := setup()
	llm.On("Generate", ctx, schemas.GenerationRequest{UserPrompt: "hello", Tier: schemas.TierFast}).Return("hi", nil).Once()

	out, err := a.Complete(ctx, "hello", schemas.TierFast)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func sampleSARIF() *schemas.CodeSecurityResult {
	return &schemas.CodeSecurityResult{Runs: []schemas.CodeRun{{
		Tool: schemas.CodeTool{Driver: schemas.CodeToolDriver{Rules: []schemas.CodeRule{
			{ID: "js/sqli", ShortDescription: &schemas.TextMessage{Text: "SQL Injection"}, Help: &schemas.TextMessage{Text: "Use parameters."}},
		}}},
		Results: []schemas.CodeFinding{
			{RuleID: "js/sqli", Level: "error", Message: schemas.TextMessage{Text: "Unsanitized input"},
				Locations: []schemas.CodeLocation{{PhysicalLocation: schemas.PhysicalLocation{
					ArtifactLocation: schemas.ArtifactLocation{URI: "src/db.js"}, Region: schemas.Region{StartLine: 12},
				}}}},
			{RuleID: "js/sqli", Level: "error"},
			{RuleID: "js/xss", Level: "warning", Message: schemas.TextMessage{Text: "Reflected"}},
		},
	}}}
}

func TestCodeIssues(t *testing.T) {
	issues := CodeIssues(sampleSARIF())
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{
		RuleID: "js/sqli", Title: "SQL Injection", Description: "Unsanitized input",
		Severity: "error", Location: "src/db.js:12", Help: "Use parameters.",
	}, issues[0])
	assert.Equal(t, "js/xss", issues[1].Title)
	assert.Nil(t, CodeIssues(nil))
}

func TestDependencyIssue(t *testing.T) {
	is := DependencyIssue(schemas.Vulnerability{ID: "SNYK-1", Title: "Prototype Pollution", Severity: "HIGH", PackageName: "lodash", Version: "4.17.15"})
	assert.Equal(t, "lodash@4.17.15", is.Location)
	assert.Equal(t, "high", is.Severity)
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()
	issue := CodeIssues(sampleSARIF())[0]

	t.Run("structured", func(t *testing.T) {
		a, llm := setup()
		llm.On("Generate", ctx, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
			return strings.Contains(r.UserPrompt, "SQL Injection") &&
				strings.Contains(r.UserPrompt, "src/db.js:12") &&
				strings.Contains(r.UserPrompt, "Use parameters.")
		})).Return("```json\n{\"summary\":\"Use prepared statements.\",\"steps\":[\"a\",\"b\"],\"code\":[{\"language\":\"js\",\"code\":\"db.query(q,[id])\"}]}\n```", nil).Once()

		rec, err := a.Recommend(ctx, issue)
		require.NoError(t, err)
		assert.Equal(t, "Use prepared statements.", rec.Summary)
		assert.Equal(t, []string{"a", "b"}, rec.Steps)
		assert.Equal(t, []llmutil.CodeBlock{{Language: "js", Code: "db.query(q,[id])"}}, rec.Code)
	})

	t.Run("free text fallback", func(t *testing.T) {
		a, llm := setup()
		llm.On("Generate", ctx, mock.Anything).Return("Escape input.\n```js\nesc(x)\n```", nil).Once()

		rec, err := a.Recommend(ctx, issue)
		require.NoError(t, err)
		assert.Contains(t, rec.Summary, "Escape input.")
		assert.Equal(t, []llmutil.CodeBlock{{Language: "js", Code: "esc(x)"}}, rec.Code)
	})

	t.Run("empty issue", func(t *testing.T) {
		a, _ := setup()
		_, err := a.Recommend(ctx, Issue{})
		assert.ErrorIs(t, err, schemas.ErrMalformedInput)
	})
}
