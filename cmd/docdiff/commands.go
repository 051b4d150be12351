package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docdiff/docdiff/internal/model"
	"github.com/docdiff/docdiff/pkg/compare"
	"github.com/docdiff/docdiff/pkg/loader"
	"github.com/docdiff/docdiff/pkg/tui"
	"github.com/docdiff/docdiff/pkg/watch"
)

// Command flags
var (
	previewRows int
	plainOutput bool
	exitCode    bool
	noProgress  bool

	question string

	sqlDSN     string
	sqlScripts []string
	sqlAgainst []string
	sqlDryRun  bool

	watchInterval time.Duration
)

var compareCmd = &cobra.Command{
	Use:   "compare <file> [file...]",
	Short: "Compare files pairwise",
	Long: `Compare every pair of files and print a report. A single file is
summarized instead.

Examples:
  docdiff compare v1.csv v2.csv
  docdiff compare q1.xlsx q2.xlsx q3.xlsx
  docdiff compare old.pdf new.pdf
  docdiff compare s3://bucket/a.parquet local.parquet
  docdiff compare --exit-code expected.csv actual.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompare,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <file>",
	Short: "Show the shape, columns and first rows of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompare,
}

var askCmd = &cobra.Command{
	Use:   "ask <file> [file...] -q <question>",
	Short: "Ask a question about the comparison of files",
	Long: `Compare the files, then stream an answer to the question.

Examples:
  docdiff ask v1.csv v2.csv -q "Which customers changed address?"
  docdiff ask contract_a.pdf contract_b.pdf -q "Summarize the changed clauses"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var sqlCmd = &cobra.Command{
	Use:   "sql <request>",
	Short: "Turn a request into SQL, run it and show or compare the result",
	Long: `Generate SQL from a natural-language request, run it against DuckDB and
print the result. With --against the result is compared with those files.

Examples:
  docdiff sql "total revenue per region" --script sales.sql
  docdiff sql "orders shipped in March" --dsn warehouse.duckdb --against march.csv
  docdiff sql "top 5 products" --dsn warehouse.duckdb --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runSQL,
}

var watchCmd = &cobra.Command{
	Use:   "watch <file> [file...]",
	Short: "Recompare files whenever one changes",
	Long: `Compare the files, then watch them and print a new report each time
one of them is saved.

Examples:
  docdiff watch expected.csv actual.csv
  docdiff watch --interval 2s a.xlsx b.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	for _, c := range []*cobra.Command{compareCmd, summaryCmd, watchCmd} {
		c.Flags().IntVar(&previewRows, "preview-rows", 0, "Rows shown in single-file summaries (default from config)")
		c.Flags().BoolVar(&plainOutput, "plain", false, "Print the report without styling")
	}
	compareCmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 when the files differ")
	for _, c := range []*cobra.Command{compareCmd, summaryCmd, askCmd} {
		c.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the loading progress bar")
	}

	askCmd.Flags().StringVarP(&question, "question", "q", "", "Question to ask (required)")
	askCmd.MarkFlagRequired("question")

	sqlCmd.Flags().StringVar(&sqlDSN, "dsn", "", "DuckDB database file (default: loader.sql_dsn or in-memory)")
	sqlCmd.Flags().StringSliceVar(&sqlScripts, "script", nil, "SQL scripts to run before the query")
	sqlCmd.Flags().StringSliceVar(&sqlAgainst, "against", nil, "Files to compare the query result with")
	sqlCmd.Flags().BoolVar(&sqlDryRun, "dry-run", false, "Print the generated SQL without running it")

	watchCmd.Flags().DurationVar(&watchInterval, "interval", watch.DefaultDebounce, "Debounce interval for change detection")

	rootCmd.AddCommand(compareCmd, summaryCmd, askCmd, sqlCmd, watchCmd)
}

// loadSources loads uris in order, with a progress bar on stderr for more
// than one file.
func loadSources(cmd *cobra.Command, uris []string) []*model.Source {
	if noProgress || len(uris) < 2 {
		return a.loader.LoadAll(cmd.Context(), uris, nil)
	}
	bar := tui.ShowProgress(os.Stderr, int64(len(uris)), "Loading")
	defer bar.Finish()
	return a.loader.LoadAll(cmd.Context(), uris, func(done, total int, uri string) {
		bar.Set(done)
	})
}

func engine() *compare.Engine {
	if previewRows > 0 {
		return compare.New(
			compare.WithPreviewRows(previewRows),
			compare.WithWorkers(a.cfg.Compare.Workers),
			compare.WithLogger(a.logger),
		)
	}
	return a.engine
}

func printResult(result *compare.Result) {
	if plainOutput {
		fmt.Print(result.String())
		return
	}
	tui.PrintResult(os.Stdout, result)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	sources := loadSources(cmd, args)
	result, err := engine().Compare(ctx, sources)
	if err != nil {
		return err
	}
	printResult(result)

	if exitCode && result.Report != nil && !result.Report.Identical() {
		os.Exit(1)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	svc, closeQA, err := a.requireQA(ctx)
	defer closeQA()
	if err != nil {
		return err
	}

	result, err := a.engine.Compare(ctx, loadSources(cmd, args))
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = svc.AskStream(ctx, result, question, nil, func(chunk string) error {
		_, err := fmt.Fprint(os.Stdout, chunk)
		return err
	})
	fmt.Println()
	if err != nil {
		return err
	}
	tui.PrintMuted(os.Stderr, "  answered in "+tui.FormatDuration(time.Since(start)))
	return nil
}

func runSQL(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	svc, closeQA, err := a.requireQA(ctx)
	defer closeQA()
	if err != nil {
		return err
	}

	db, err := a.loader.SQL()
	if sqlDSN != "" {
		db, err = loader.OpenSQL(sqlDSN)
		if err == nil {
			defer db.Close()
		}
	}
	if err != nil {
		return err
	}

	for _, path := range sqlScripts {
		script, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := db.RunScript(ctx, string(script)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	schema, err := db.Schema(ctx)
	if err != nil {
		a.logger.Warn("schema unavailable", zap.Error(err))
	}

	query, err := svc.GenerateSQL(ctx, args[0], schema)
	if err != nil {
		return err
	}
	tui.PrintMuted(os.Stderr, "  "+strings.ReplaceAll(query, "\n", "\n  "))
	if sqlDryRun {
		fmt.Println(query)
		return nil
	}

	start := time.Now()
	src, err := db.QuerySource(ctx, "sql://"+query, query)
	if err != nil {
		return err
	}
	a.logger.Debug("query finished", zap.Duration("duration", time.Since(start)))

	sources := append([]*model.Source{src}, a.loader.LoadAll(ctx, sqlAgainst, nil)...)
	result, err := a.engine.Compare(ctx, sources)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	w, err := watch.NewWatcher(watchInterval)
	if err != nil {
		return err
	}
	defer w.Close()

	r := watch.NewRecomparer(args, a.loader, engine(), a.logger)
	r.OnResult = func(changed string, result *compare.Result) {
		stamp := time.Now().Format("15:04:05")
		if changed == "" {
			tui.PrintMuted(os.Stdout, fmt.Sprintf("[%s] Watching %d file(s), Ctrl+C to stop", stamp, len(args)))
		} else {
			tui.PrintMuted(os.Stdout, fmt.Sprintf("[%s] %s changed", stamp, changed))
		}
		printResult(result)
	}
	w.OnError = func(path string, err error) {
		tui.PrintError(os.Stderr, fmt.Errorf("%s: %w", path, err))
	}

	if err := r.Start(ctx); err != nil {
		return err
	}
	if err := r.Watch(ctx, w); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
