// File: cmd/team.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codeshield-25/codeshield-web/internal/observability"
	"github.com/codeshield-25/codeshield-web/internal/service"
	"github.com/codeshield-25/codeshield-web/internal/teams"
)

// newTeamCmd groups the team management subcommands.
func newTeamCmd() *cobra.Command {
	teamCmd := &cobra.Command{
		Use:   "team",
		Short: "Creates, joins and inspects teams",
	}
	teamCmd.PersistentFlags().Bool("json", false, "Print results as JSON.")

	teamCmd.AddCommand(newTeamCreateCmd())
	teamCmd.AddCommand(newTeamJoinCmd())
	teamCmd.AddCommand(newTeamShowCmd())
	teamCmd.AddCommand(newTeamHistoryCmd())
	return teamCmd
}

// withTeams opens the configured store and hands a team service to fn.
func withTeams(cmd *cobra.Command, fn func(ctx context.Context, svc *teams.Service) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	st, cleanup, err := service.InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	svc, err := service.InitializeTeams(st, cfg.GitHub(), logger)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func newTeamCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a team bound to a repository and prints its join code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req teams.CreateRequest
			req.Name, _ = cmd.Flags().GetString("name")
			req.RepositoryURL, _ = cmd.Flags().GetString("repo")
			req.CreatedBy, _ = cmd.Flags().GetString("user")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withTeams(cmd, func(ctx context.Context, svc *teams.Service) error {
				return runTeamCreate(ctx, svc, req, asJSON, cmd.OutOrStdout())
			})
		},
	}
	createCmd.Flags().String("name", "", "Team name.")
	createCmd.Flags().String("repo", "", "GitHub repository URL the team scans.")
	createCmd.Flags().String("user", "", "Id of the creating user, who becomes the first member.")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("repo")
	_ = createCmd.MarkFlagRequired("user")
	return createCmd
}

func newTeamJoinCmd() *cobra.Command {
	joinCmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Joins a team by its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withTeams(cmd, func(ctx context.Context, svc *teams.Service) error {
				return runTeamJoin(ctx, svc, args[0], userID, asJSON, cmd.OutOrStdout())
			})
		},
	}
	joinCmd.Flags().String("user", "", "Id of the joining user.")
	_ = joinCmd.MarkFlagRequired("user")
	return joinCmd
}

func newTeamShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <team-id>",
		Short: "Shows a team and its running averages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withTeams(cmd, func(ctx context.Context, svc *teams.Service) error {
				return runTeamShow(ctx, svc, args[0], asJSON, cmd.OutOrStdout())
			})
		},
	}
}

func newTeamHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history <team-id>",
		Short: "Lists a team's recent scans and how its averages moved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withTeams(cmd, func(ctx context.Context, svc *teams.Service) error {
				return runTeamHistory(ctx, svc, args[0], limit, asJSON, cmd.OutOrStdout())
			})
		},
	}
	historyCmd.Flags().Int("limit", teams.DefaultHistoryLimit, "Maximum number of runs to list.")
	return historyCmd
}

func runTeamCreate(ctx context.Context, svc *teams.Service, req teams.CreateRequest, asJSON bool, out io.Writer) error {
	team, err := svc.Create(ctx, req)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, team)
	}
	fmt.Fprintf(out, "Created team %q (%s)\n", team.Name, team.ID)
	fmt.Fprintf(out, "Join code: %s\n", team.Code)
	return nil
}

func runTeamJoin(ctx context.Context, svc *teams.Service, code, userID string, asJSON bool, out io.Writer) error {
	team, err := svc.Join(ctx, code, userID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, team)
	}
	fmt.Fprintf(out, "Joined team %q (%s) as %s\n", team.Name, team.ID, userID)
	return nil
}

func runTeamShow(ctx context.Context, svc *teams.Service, teamID string, asJSON bool, out io.Writer) error {
	team, err := svc.Get(ctx, teamID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, team)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", team.ID)
	fmt.Fprintf(w, "Name\t%s\n", team.Name)
	fmt.Fprintf(w, "Repository\t%s\n", team.RepositoryURL)
	fmt.Fprintf(w, "Join code\t%s\n", team.Code)
	fmt.Fprintf(w, "Members\t%s\n", strings.Join(team.Members, ", "))
	fmt.Fprintf(w, "Avg high\t%.2f\n", team.Stats.AvgHighVulCnt)
	fmt.Fprintf(w, "Avg medium\t%.2f\n", team.Stats.AvgMidVulCnt)
	fmt.Fprintf(w, "Avg low\t%.2f\n", team.Stats.AvgLowVulCnt)
	return w.Flush()
}

func runTeamHistory(ctx context.Context, svc *teams.Service, teamID string, limit int, asJSON bool, out io.Writer) error {
	hist, err := svc.History(ctx, teamID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, hist)
	}

	if len(hist.Runs) == 0 {
		fmt.Fprintf(out, "No scans recorded for team %s.\n", teamID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPLETED\tREPOSITORY\tHIGH\tMEDIUM\tLOW")
	for _, run := range hist.Runs {
		total := run.Stats.Total()
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			run.CompletedAt.UTC().Format("2006-01-02 15:04"), run.RepositoryURL,
			total.High, total.Medium, total.Low)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Trend: high %s, medium %s, low %s\n",
		hist.Trend.High.Direction, hist.Trend.Medium.Direction, hist.Trend.Low.Direction)
	return nil
}

// writeJSON prints v as indented JSON.
func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
