package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/thread-weaver/logging"
	"github.com/theimaginaryfoundation/thread-weaver/render"
	"github.com/theimaginaryfoundation/thread-weaver/store"
	"github.com/theimaginaryfoundation/thread-weaver/tui"
	"github.com/theimaginaryfoundation/thread-weaver/weave"
)

var dbPath string

func main() {
	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".thread-weaver", "weaver.db")

	rootCmd := &cobra.Command{
		Use:   "weaver",
		Short: "Reconstruct conversations from a paginated chat archive and query them",
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "conversation database path")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

func ingestCmd() *cobra.Command {
	var (
		inPath     string
		outDir     string
		arrayField string
		pageSize   int
		pretty     bool
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Split a whole-archive export into per-thread JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" || outDir == "" {
				return fmt.Errorf("both --in and --out are required")
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := weave.SplitArchive(ctx, inPath, outDir, weave.SplitOptions{
				IngestOptions: weave.IngestOptions{
					ArrayField: arrayField,
					PageSize:   pageSize,
				},
				OverwriteExisting: overwrite,
				Pretty:            pretty,
			})
			if err != nil {
				return err
			}

			for _, skipped := range res.Skipped {
				logging.Warn("skipped thread", "source", skipped.Source, "error", skipped.Err)
			}
			fmt.Printf("threads_written=%d skipped=%d out_dir=%s\n",
				res.ThreadsWritten, len(res.Skipped), outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "archive JSON export (array or object with a thread array)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write thread JSON files into")
	cmd.Flags().StringVar(&arrayField, "array-field", "", "object field holding the thread array (default: first array field)")
	cmd.Flags().IntVar(&pageSize, "page-size", weave.DefaultPageSize, "maximum messages per thread")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "pretty-print thread files")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing thread files")
	return cmd
}

func mergeCmd() *cobra.Command {
	var (
		inPath     string
		arrayField string
		oracleKind string
		model      string
		apiKey     string
		rpm        int
		pageSize   int
		gapMin     int
		gapMax     int
		preview    int
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Reconstruct conversations from threads and store them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}

			ctx, stop := signalContext()
			defer stop()

			oracle, err := buildOracle(oracleKind, model, apiKey, rpm)
			if err != nil {
				return err
			}
			if oracleKind == "tui" {
				// Keep log noise off the interactive prompt's screen.
				if err := logging.InitFile(); err != nil {
					return err
				}
				defer logging.Close()
			}

			threads, report, err := loadThreads(ctx, inPath, arrayField, pageSize)
			if err != nil {
				return err
			}
			for _, skipped := range report.Skipped {
				logging.Warn("skipped thread", "source", skipped.Source, "error", skipped.Err)
			}
			logging.Info("threads loaded", "count", report.ThreadsRead, "keys", len(threads.Keys()))

			res, err := weave.MergeThreads(ctx, threads, weave.MergeOptions{
				PageSize:        pageSize,
				ChainGapMin:     gapMin,
				ChainGapMax:     gapMax,
				PreviewMessages: preview,
				Oracle:          oracle,
			})
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				logging.Warn("merge warning", "key", w.Key, "error", w.Err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveConversations(ctx, res.Conversations); err != nil {
				return err
			}

			fmt.Printf("conversations=%d warnings=%d db=%s\n",
				len(res.Conversations), len(res.Warnings), dbPath)
			if s := render.Warnings(res.Warnings); s != "" {
				fmt.Print(s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "thread directory (from ingest) or a whole-archive JSON export")
	cmd.Flags().StringVar(&arrayField, "array-field", "", "object field holding the thread array when --in is an archive")
	cmd.Flags().StringVar(&oracleKind, "oracle", "tui", "ambiguous-merge judge: tui, llm or none")
	cmd.Flags().StringVar(&model, "model", "gpt-5-mini", "OpenAI model for --oracle llm")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY)")
	cmd.Flags().IntVar(&rpm, "rpm", 30, "request rate limit for --oracle llm, per minute")
	cmd.Flags().IntVar(&pageSize, "page-size", weave.DefaultPageSize, "archive pagination size")
	cmd.Flags().IntVar(&gapMin, "gap-min", -3, "auto-chain gap window lower bound, minutes")
	cmd.Flags().IntVar(&gapMax, "gap-max", 0, "auto-chain gap window upper bound, minutes")
	cmd.Flags().IntVar(&preview, "preview", 5, "messages of context shown to the oracle")
	return cmd
}

func buildOracle(kind, model, apiKey string, rpm int) (weave.Oracle, error) {
	switch kind {
	case "tui":
		return tui.PromptOracle{}, nil
	case "llm":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("--oracle llm needs OPENAI_API_KEY (or --api-key)")
		}
		return newLLMOracle(apiKey, model, rpm), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown oracle %q (want tui, llm or none)", kind)
	}
}

func loadThreads(ctx context.Context, inPath, arrayField string, pageSize int) (*weave.ThreadStore, weave.IngestReport, error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, weave.IngestReport{}, fmt.Errorf("stat --in: %w", err)
	}
	opts := weave.IngestOptions{ArrayField: arrayField, PageSize: pageSize}
	if fi.IsDir() {
		return weave.LoadThreadDir(ctx, inPath, opts)
	}
	return weave.ReadArchive(ctx, inPath, opts)
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.ListConversations(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no conversations stored; run 'weaver merge' first")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%-48s %8d messages\n", info.DisplayKey, info.MessageCount)
			}
			return nil
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var (
		contact   string
		window    int
		threshold int
		topWords  int
		daily     bool
	)

	cmd := &cobra.Command{
		Use:   "stats <display-key>",
		Short: "Run analytics over one stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.LoadConversation(ctx, args[0])
			if err != nil {
				return err
			}
			stats, err := weave.NewStats(conv)
			if err != nil {
				return err
			}

			fmt.Println(render.Summary(stats))
			fmt.Println(render.WeekdayDistribution(stats.WeekdayDistribution()))

			buckets, err := stats.TimeOfDayDistribution(window, contact)
			if err != nil {
				return err
			}
			fmt.Println(render.TimeOfDay(buckets))

			shares, err := stats.StarterShares(threshold)
			if err != nil {
				return err
			}
			fmt.Println(render.StarterShares(shares, threshold))

			if daily {
				hist, err := stats.DailyHistogram(contact)
				if err != nil {
					return err
				}
				fmt.Println(render.DailyHistogram(hist))
			}

			if topWords > 0 {
				words, err := stats.TopWords(contact, topWords)
				if err != nil {
					return err
				}
				fmt.Println(render.TopWords(contact, words))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contact, "contact", "", "restrict per-person queries to one participant")
	cmd.Flags().IntVar(&window, "window", weave.DefaultTimeOfDayWindowMinutes, "time-of-day bucket width, minutes")
	cmd.Flags().IntVar(&threshold, "threshold", weave.DefaultStarterThresholdMinutes, "episode inactivity threshold, minutes")
	cmd.Flags().IntVar(&topWords, "top-words", 0, "also show the N most frequent words")
	cmd.Flags().BoolVar(&daily, "daily", false, "also show the per-day histogram")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		outPath string
		pretty  bool
	)

	cmd := &cobra.Command{
		Use:   "export <display-key>",
		Short: "Write word frequencies for the word-cloud renderer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.LoadConversation(ctx, args[0])
			if err != nil {
				return err
			}
			stats, err := weave.NewStats(conv)
			if err != nil {
				return err
			}
			if err := stats.ExportWordCounts(outPath, pretty); err != nil {
				return err
			}
			fmt.Printf("word counts written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "output JSON path")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "pretty-print the output")
	return cmd
}
