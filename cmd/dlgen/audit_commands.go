package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dlgen/internal/audit"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the generation audit trail",
	}

	auditCmd.AddCommand(newAuditListCommand(ctx))
	auditCmd.AddCommand(newAuditShowCommand(ctx))

	return auditCmd
}

func newAuditListCommand(ctx *commandContext) *cobra.Command {
	var identity string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAuditStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), identity, limit, offset)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			headers := []string{"ID", "Identity", "Letter Type", "Format", "Status", "Valid/Total", "Converted", "Started"}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					strconv.FormatInt(run.ID, 10),
					run.Identity,
					run.LetterType,
					run.OutputFormat,
					run.Status,
					fmt.Sprintf("%d/%d", run.ValidRecords, run.TotalRecords),
					strconv.Itoa(run.Converted),
					run.StartedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

			if writerIsTerminal(out) {
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
			} else {
				fmt.Fprint(out, renderTSV(headers, rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Filter runs by user identity")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to list (default 50)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	return cmd
}

func newAuditShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its letter accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}

			store, err := openAuditStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Run(cmd.Context(), runID)
			if err != nil {
				return err
			}
			accounts, err := store.RunAccounts(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("load run accounts: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %d (%s)\n", run.ID, run.Status)
			fmt.Fprintf(out, "  Identity:     %s\n", run.Identity)
			fmt.Fprintf(out, "  Letter type:  %s\n", run.LetterType)
			fmt.Fprintf(out, "  Output:       %s\n", run.OutputFormat)
			fmt.Fprintf(out, "  Records:      %d valid of %d uploaded\n", run.ValidRecords, run.TotalRecords)
			fmt.Fprintf(out, "  Generated:    %d documents, %d converted, %d failed\n", run.Generated, run.Converted, run.Failed)
			fmt.Fprintf(out, "  Areas:        %s\n", run.Areas)
			fmt.Fprintf(out, "  Started:      %s\n", run.StartedAt.Local().Format(time.RFC1123))
			if !run.FinishedAt.IsZero() {
				fmt.Fprintf(out, "  Finished:     %s\n", run.FinishedAt.Local().Format(time.RFC1123))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:        %s\n", run.Error)
			}

			if len(accounts) == 0 {
				return nil
			}
			headers := []string{"Area", "DL Code", "Account No", "Customer", "Amount"}
			rows := make([][]string, 0, len(accounts))
			for _, acct := range accounts {
				rows = append(rows, []string{acct.Area, acct.DLCode, acct.AccountNo, acct.CustomerName, acct.Amount})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}

			fmt.Fprintln(out)
			if writerIsTerminal(out) {
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
			} else {
				fmt.Fprint(out, renderTSV(headers, rows))
			}
			return nil
		},
	}
}

func openAuditStore(ctx *commandContext) (*audit.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := audit.Open(filepath.Join(cfg.Paths.DataDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return store, nil
}
