// Command clinicflow merges raw clinic visit workbooks into the master table
// and reshapes it into the integer coded numeric table.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clinicflow/internal/app"
	"clinicflow/internal/blob"
	"clinicflow/internal/config"
	"clinicflow/internal/ingest"
	"clinicflow/internal/logging"
	"clinicflow/internal/reshape"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs one invocation and returns the process exit code.
func cli(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type cliState struct {
	configPath string
	envFile    string
	verbose    bool
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	st := &cliState{}
	root := &cobra.Command{
		Use:   "clinicflow",
		Short: "Clinic visit spreadsheet pipeline",
		Long: `clinicflow folds new raw clinic visit workbooks into an append-only master
table and derives a long, integer coded numeric table from it.

Files already listed in the processed-file ledger are never merged twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(st.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, st.verbose)
			if err != nil {
				return err
			}
			st.cfg, st.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "clinicflow.yaml", "Config file (missing file means defaults)")
	root.PersistentFlags().StringVar(&st.envFile, "env-file", ".env", "Environment file loaded before the config")
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newIngestCmd(st),
		newReshapeCmd(st),
		newRunCmd(st),
		newWatchCmd(st),
		newLedgerCmd(st),
		newArtifactsCmd(st),
	)
	return root
}

// withApp opens the backends for the duration of fn.
func (st *cliState) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := app.Open(ctx, st.cfg, st.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func newIngestCmd(st *cliState) *cobra.Command {
	var onError string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Merge unprocessed workbooks from the input folder into the master table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if onError != "" {
				st.cfg.Ingest.OnError = onError
				if err := st.cfg.Validate(); err != nil {
					return err
				}
			}
			return st.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Ingest(cmd.Context())
				if err != nil {
					return err
				}
				printIngest(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&onError, "on-error", "", "Failure policy for bad files: abort or skip (default from config)")
	return cmd
}

func newReshapeCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "reshape",
		Short: "Rebuild the numeric table from the master table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Reshape(cmd.Context())
				if err != nil {
					return err
				}
				printReshape(cmd.OutOrStdout(), st.cfg.Reshape.NumericKey, res)
				return nil
			})
		},
	}
}

func newRunCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest, then rebuild the numeric table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd.Context(), func(a *app.App) error {
				ires, err := a.Ingest(cmd.Context())
				if err != nil {
					return err
				}
				printIngest(cmd.OutOrStdout(), cmd.ErrOrStderr(), ires)
				rres, err := a.Reshape(cmd.Context())
				if err != nil {
					return err
				}
				printReshape(cmd.OutOrStdout(), st.cfg.Reshape.NumericKey, rres)
				return nil
			})
		},
	}
}

func newWatchCmd(st *cliState) *cobra.Command {
	var withReshape bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest whenever new workbooks land in the input folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("reshape") {
				withReshape = st.cfg.Watch.Reshape
			}
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			return st.withApp(cmd.Context(), func(a *app.App) error {
				return a.Watch(cmd.Context(), withReshape,
					func(res ingest.Result) { printIngest(out, errOut, res) },
					func(res reshape.Result) { printReshape(out, st.cfg.Reshape.NumericKey, res) })
			})
		},
	}
	cmd.Flags().BoolVar(&withReshape, "reshape", false, "Also rebuild the numeric table after each merge")
	return cmd
}

func newLedgerCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "List files recorded as processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Ledger.Entries(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					recorded := "-"
					if !e.RecordedAt.IsZero() {
						recorded = e.RecordedAt.UTC().Format(time.RFC3339)
					}
					runID := e.RunID
					if runID == "" {
						runID = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, runID, recorded)
				}
				return tw.Flush()
			})
		},
	}
}

func newArtifactsCmd(st *cliState) *cobra.Command {
	var (
		presign bool
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List stored tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd.Context(), func(a *app.App) error {
				infos, err := a.Store.List(cmd.Context(), "")
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, info := range infos {
					line := fmt.Sprintf("%s\t%d\t%s", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339))
					if presign {
						url, err := a.Store.PresignURL(cmd.Context(), info.Key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
						switch {
						case errors.Is(err, blob.ErrUnsupported):
							url = "-"
						case err != nil:
							return err
						}
						line += "\t" + url
					}
					fmt.Fprintln(tw, line)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&presign, "presign", false, "Print a pre-signed download URL per artifact (s3 only)")
	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "Pre-signed URL lifetime")
	return cmd
}

func printIngest(stdout, stderr io.Writer, res ingest.Result) {
	for _, f := range res.Failed {
		fmt.Fprintf(stderr, "Skipped %s: %v\n", f.Name, f.Err)
	}
	if len(res.Recovered) > 0 {
		fmt.Fprintf(stdout, "Recovered %d ledger entries from the master table\n", len(res.Recovered))
	}
	if res.NothingToDo {
		fmt.Fprintln(stdout, "No new Excel files to process.")
		return
	}
	fmt.Fprintf(stdout, "Master file updated with %d new files\n", len(res.Files))
}

func printReshape(w io.Writer, key string, res reshape.Result) {
	fmt.Fprintf(w, "Numeric table saved to %s (%d rows)\n", key, res.Rows)
	fmt.Fprintf(w, "Case codes: %s\n", res.CaseMap)
}
