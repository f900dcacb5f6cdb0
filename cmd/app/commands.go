package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/backup"
	"SpeakCEO/internal/cloud"
	"SpeakCEO/internal/leads"
	"SpeakCEO/internal/services"
	"SpeakCEO/internal/sheets"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const idsPerGroup = 10

// printIDs lists the ID series in numbered groups of ten.
func printIDs(w io.Writer, ids []string) {
	header := color.New(color.FgCyan, color.Bold)
	for i := 0; i < len(ids); i += idsPerGroup {
		end := min(i+idsPerGroup, len(ids))
		header.Fprintf(w, "Group %d (%d-%d)\n", i/idsPerGroup+1, i+1, end)
		fmt.Fprintln(w, "  "+strings.Join(ids[i:end], ", "))
	}
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the pre-assigned student IDs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ids",
		Short: "Print every valid student ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			printIDs(cmd.OutOrStdout(), accounts.NewScheme(cfg.Accounts).IDs())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create placeholder accounts when the store has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				n, err := svc.Accounts.EnsureSeeded(ctx)
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%d account(s) created\n", n)
				return nil
			})
		},
	})

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every student account and re-seed the ID series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete all accounts without --yes")
			}
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				n, err := svc.Accounts.ResetAll(ctx)
				if err != nil {
					return err
				}
				color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "all accounts reset, %d fresh ID(s)\n", n)
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm deleting every account")
	cmd.AddCommand(reset)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show account activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				st, err := svc.Accounts.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "accounts: %d\nnamed: %d\nactive this week: %d\naverage points: %.1f\n",
					st.Total, st.Named, st.ActiveWeek, st.AveragePoints)
				return nil
			})
		},
	})
	return cmd
}

func leadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Export and import captured leads",
	}

	var format, out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export leads as csv, detailed csv or a full json backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				return exportLeads(ctx, svc, cmd.OutOrStdout(), format, out)
			})
		},
	}
	export.Flags().StringVar(&format, "format", "csv", "csv, detailed or json")
	export.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <backup.json>",
		Short: "Merge a json backup into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := backup.Decode(f)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				res, err := backup.Restore(ctx, snap, svc.Leads, svc.Store)
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "imported %d lead(s) and %d account(s)\n", res.Leads, res.Accounts)
				return nil
			})
		},
	})
	return cmd
}

func exportLeads(ctx context.Context, svc *services.Services, stdout io.Writer, format, out string) error {
	now := time.Now()
	if format == "json" {
		snap, err := backup.Build(ctx, svc.Store, now)
		if err != nil {
			return err
		}
		if out != "" {
			return backup.WriteFile(out, snap)
		}
		return backup.Encode(stdout, snap)
	}

	write := backup.WriteLeadsCSV
	switch format {
	case "csv":
	case "detailed":
		write = backup.WriteDetailedCSV
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	list, err := svc.Leads.List(ctx, leads.Filter{})
	if err != nil {
		return err
	}
	if out == "" {
		return write(stdout, list)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := write(f, list); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry pending spreadsheet rows and run one cloud backup sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services.Services) error {
				w := cmd.OutOrStdout()
				var errs []error

				res, err := svc.Sheets.SyncPending(ctx)
				switch {
				case errors.Is(err, sheets.ErrNotConfigured):
					fmt.Fprintln(w, "spreadsheet: not configured")
				case err != nil:
					errs = append(errs, fmt.Errorf("spreadsheet: %w", err))
				default:
					fmt.Fprintf(w, "spreadsheet: %d synced, %d failed, %d out of retries\n", res.Synced, res.Failed, res.Skipped)
				}

				if !svc.Cloud.Enabled() {
					fmt.Fprintln(w, "cloud: not configured")
					return errors.Join(errs...)
				}
				cres, err := svc.Cloud.Sync(ctx)
				if err != nil && !errors.Is(err, cloud.ErrNotConfigured) {
					errs = append(errs, fmt.Errorf("cloud: %w", err))
				} else if err == nil {
					fmt.Fprintf(w, "cloud: %d lead(s) stored, %d imported, bin %s\n", cres.Merged, cres.Imported, svc.Cloud.BinID())
				}
				return errors.Join(errs...)
			})
		},
	}
}
