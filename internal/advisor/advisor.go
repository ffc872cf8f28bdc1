// internal/advisor/advisor.go
package advisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/llmutil"
)

// RewritePrefix is prepended to user code in a rewrite request.
const RewritePrefix = "Optimize and correct the following code to make it the best version possible, " +
	"ensuring it is efficient, free from vulnerabilities, and adheres to best practices. " +
	"Provide only the corrected and optimized code without any explanation or description. " +
	"Do not add unnecessary comments, but you may include examples of how to use the rewritten code " +
	"and any information the user needs to know to use it.\n\n"

const (
	securitySystemPrompt = "You are an application security engineer. Answer precisely and prefer concrete, " +
		"copy-pasteable remediations. Use fenced code blocks with a language tag for any code."
	recommendSystemPrompt = "You are an application security engineer reviewing static analysis and " +
		"dependency scan findings. Respond only with the requested JSON object."
)

// Advisor turns scan findings and free-form questions into model prompts and
// parses the responses.
type Advisor struct {
	logger *zap.Logger
	llm    schemas.LLMClient
}

// New creates an Advisor backed by llm.
func New(logger *zap.Logger, llm schemas.LLMClient) *Advisor {
	return &Advisor{logger: logger.Named("advisor"), llm: llm}
}

// Rewrite is a model-rewritten version of a code snippet.
type Rewrite struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Raw      string `json:"raw"`
}

// Rewrite asks the model to fix and optimize code. The first fenced block of
// the response is the result; without one the whole response is used.
func (a *Advisor) Rewrite(ctx context.Context, code string) (*Rewrite, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: no code to rewrite", schemas.ErrMalformedInput)
	}
	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: RewritePrefix + code,
		Tier:       schemas.TierPowerful,
		Options:    schemas.GenerationOptions{Temperature: 0.1},
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite generation failed: %w", err)
	}

	block := llmutil.FirstCodeBlock(raw)
	if len(llmutil.ExtractCodeBlocks(raw)) == 0 {
		block.Language = DetectLanguage(code)
	}
	a.logger.Debug("Rewrite complete", zap.String("language", block.Language), zap.Int("bytes", len(block.Code)))
	return &Rewrite{Language: block.Language, Code: block.Code, Raw: raw}, nil
}

// DetectLanguage guesses a snippet's language the way the editor view does.
func DetectLanguage(code string) string {
	switch {
	case strings.Contains(code, "def ") || strings.Contains(code, "import "):
		return "python"
	case strings.Contains(code, "public class ") || strings.Contains(code, "System.out.println"):
		return "java"
	default:
		return "javascript"
	}
}

// Answer is a model reply split into prose and code.
type Answer struct {
	Text     string            `json:"text"`
	Segments []llmutil.Segment `json:"segments"`
}

// Query answers a natural-language security question.
func (a *Advisor) Query(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", schemas.ErrMalformedInput)
	}
	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: securitySystemPrompt,
		UserPrompt:   question,
		Tier:         schemas.TierFast,
	})
	if err != nil {
		return nil, fmt.Errorf("query generation failed: %w", err)
	}
	return &Answer{Text: raw, Segments: llmutil.Split(raw)}, nil
}

// Complete forwards a prompt verbatim and returns the raw completion.
func (a *Advisor) Complete(ctx context.Context, prompt string, tier schemas.ModelTier) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", schemas.ErrMalformedInput)
	}
	return a.llm.Generate(ctx, schemas.GenerationRequest{UserPrompt: prompt, Tier: tier})
}
