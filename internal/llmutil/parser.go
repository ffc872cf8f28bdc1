// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Backticks are written as \x60 because raw strings cannot contain them.

	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown fence.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// codeBlockRegex matches a fenced block with an optional language tag.
	codeBlockRegex = regexp.MustCompile("\x60\x60\x60(\\w+)?\\n([\\s\\S]*?)\x60\x60\x60")
)

// DefaultLanguage labels fenced blocks that carry no language tag.
const DefaultLanguage = "plaintext"

// CodeBlock is one fenced code block found in a model response.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Segment is a piece of a response: either prose or a code block.
type Segment struct {
	Text string     `json:"text,omitempty"`
	Code *CodeBlock `json:"code,omitempty"`
}

// ExtractCodeBlocks returns every fenced block in content, in order.
func ExtractCodeBlocks(content string) []CodeBlock {
	matches := codeBlockRegex.FindAllStringSubmatch(content, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, newBlock(m[1], m[2]))
	}
	return blocks
}

// Split breaks content into alternating prose and code segments. Blank prose
// between blocks is dropped.
func Split(content string) []Segment {
	var out []Segment
	last := 0
	for _, loc := range codeBlockRegex.FindAllStringSubmatchIndex(content, -1) {
		if text := content[last:loc[0]]; strings.TrimSpace(text) != "" {
			out = append(out, Segment{Text: text})
		}
		lang := ""
		if loc[2] >= 0 {
			lang = content[loc[2]:loc[3]]
		}
		b := newBlock(lang, content[loc[4]:loc[5]])
		out = append(out, Segment{Code: &b})
		last = loc[1]
	}
	if text := content[last:]; strings.TrimSpace(text) != "" {
		out = append(out, Segment{Text: text})
	}
	return out
}

// FirstCodeBlock returns the first fenced block, or the whole trimmed content
// labeled with DefaultLanguage when there is none.
func FirstCodeBlock(content string) CodeBlock {
	if m := codeBlockRegex.FindStringSubmatch(content); m != nil {
		return newBlock(m[1], m[2])
	}
	return CodeBlock{Language: DefaultLanguage, Code: strings.TrimSpace(content)}
}

func newBlock(lang, code string) CodeBlock {
	if lang == "" {
		lang = DefaultLanguage
	}
	return CodeBlock{Language: lang, Code: strings.TrimSpace(code)}
}

// ParseJSONResponse parses a model response into T. It tolerates a markdown
// fence around the JSON and conversational text before or after it.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	candidate := response

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			candidate = matches[1]
		}
	} else if (isObject || isArray) && !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		if s, ok := bracketed(response, "{", "}"); isObject && ok {
			candidate = s
		} else if s, ok := bracketed(response, "[", "]"); isArray && ok {
			candidate = s
		}
	}

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(candidate, 500))
	}
	return &result, nil
}

func bracketed(s, left, right string) (string, bool) {
	first := strings.Index(s, left)
	last := strings.LastIndex(s, right)
	if first == -1 || last <= first {
		return "", false
	}
	return s[first : last+1], true
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
