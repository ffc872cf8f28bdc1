// File: cmd/ask.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeshield-25/codeshield-web/internal/advisor"
	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/service"
)

var errNoLLM = errors.New("AI assistance requires an LLM API key (CODESHIELD_LLM_API_KEY)")

// newAskCmd groups the AI assistance subcommands.
func newAskCmd() *cobra.Command {
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Asks the AI assistant to rewrite code or answer security questions",
	}
	askCmd.AddCommand(&cobra.Command{
		Use:   "rewrite [file|-]",
		Short: "Rewrites a code snippet to fix security issues; reads stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			code, err := readSource(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withAdvisor(cmd, func(ctx context.Context, adv *advisor.Advisor) error {
				return runRewrite(ctx, adv, code, cmd.OutOrStdout())
			})
		},
	})
	askCmd.AddCommand(&cobra.Command{
		Use:   "query <question...>",
		Short: "Answers a natural-language security question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withAdvisor(cmd, func(ctx context.Context, adv *advisor.Advisor) error {
				return runQuery(ctx, adv, question, cmd.OutOrStdout())
			})
		},
	})
	return askCmd
}

// withAdvisor builds an advisor over the configured LLM client.
func withAdvisor(cmd *cobra.Command, fn func(ctx context.Context, adv *advisor.Advisor) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	llm, err := service.InitializeLLMClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return err
	}
	if llm == nil {
		return errNoLLM
	}
	defer llm.Close()

	return fn(ctx, advisor.New(logger, llm))
}

func readSource(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read code from %s: %w", path, err)
	}
	return string(data), nil
}

func runRewrite(ctx context.Context, adv *advisor.Advisor, code string, out io.Writer) error {
	rw, err := adv.Rewrite(ctx, code)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rw.Code)
	return nil
}

func runQuery(ctx context.Context, adv *advisor.Advisor, question string, out io.Writer) error {
	answer, err := adv.Query(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strings.TrimSpace(answer.Text))
	return nil
}
