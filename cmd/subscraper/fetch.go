package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subscraper/pkg/logger"
	"subscraper/pkg/models"
	"subscraper/pkg/scraper"
	"subscraper/pkg/ui"
)

// defaultAttributes are refreshed when neither --attrs nor the config name any
var defaultAttributes = []string{"score", "num_comments", "removed_by_category"}

type fetchOptions struct {
	start         string
	end           string
	window        time.Duration
	pace          time.Duration
	noClamp       bool
	attributes    []string
	batchSize     int
	canonicalKeys bool
	noEnrich      bool
	pushshiftURL  string
	retry         bool
	output        string
}

var fetchOpts fetchOptions

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <subreddit>",
	Short: "Download and enrich every submission to a subreddit in a time range",
	Long: `Download every submission to a subreddit created in [start, end) from the
Pushshift archive, refresh live attributes from Reddit, and write one JSON
object per line.

Times accept RFC 3339, a plain date (2006-01-02) or unix seconds. The end
defaults to now.`,
	Example: `  # One day of r/golang with fresh scores
  subscraper fetch golang --start 2021-01-01 --end 2021-01-02

  # Smaller windows for a busy subreddit, archive fields only
  subscraper fetch AskReddit --start 2021-01-01 --end 2021-01-02 --window 30m --no-enrich

  # Choose the refreshed attributes and write to a file
  subscraper fetch golang --start 2021-01-01 --attrs score,removed_by_category -o golang.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	f := fetchCmd.Flags()
	f.StringVar(&fetchOpts.start, "start", "", "start of the range, inclusive (required)")
	f.StringVar(&fetchOpts.end, "end", "", "end of the range, exclusive (default: now)")
	f.DurationVar(&fetchOpts.window, "window", 4*time.Hour, "time span covered by one archive request")
	f.DurationVar(&fetchOpts.pace, "pace", 100*time.Millisecond, "pause after each uncached archive request")
	f.BoolVar(&fetchOpts.noClamp, "no-clamp", false, "let the last window run past the end of the range")
	f.StringSliceVar(&fetchOpts.attributes, "attrs", nil, "live attributes to refresh (default: score,num_comments,removed_by_category)")
	f.IntVar(&fetchOpts.batchSize, "batch-size", 100, "records per live lookup, at most 100")
	f.BoolVar(&fetchOpts.canonicalKeys, "canonical-keys", false, "cache live lookups independent of record order")
	f.BoolVar(&fetchOpts.noEnrich, "no-enrich", false, "skip the live lookup")
	f.StringVar(&fetchOpts.pushshiftURL, "pushshift-url", "", "override the archive API base URL")
	f.BoolVar(&fetchOpts.retry, "retry", false, "retry transient upstream failures")
	f.StringVarP(&fetchOpts.output, "output", "o", "", "write records to a file instead of stdout")
	_ = fetchCmd.MarkFlagRequired("start")
}

func runFetch(cmd *cobra.Command, args []string) error {
	subreddit := strings.TrimPrefix(strings.TrimSpace(args[0]), "r/")

	start, err := parseTime(fetchOpts.start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end := time.Now().UTC()
	if fetchOpts.end != "" {
		if end, err = parseTime(fetchOpts.end); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := scraper.New(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	log := logger.GetLogger().WithFields(map[string]interface{}{
		"run_id":    d.RunID(),
		"subreddit": subreddit,
	})
	log.WithField("version", version).Info("subscraper starting")

	ui.PrintInfo("Subreddit", subreddit)
	ui.PrintInfo("Range", fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))

	d.Walker().OnTruncation = func(w scraper.TruncationWarning) {
		ui.PrintWarning("Possible truncated window, consider a smaller --window",
			fmt.Sprintf("%s to %s (%d records)", w.After.Format(time.RFC3339), w.Before.Format(time.RFC3339), w.Count))
	}

	records, err := d.GetSubredditSubmissions(ctx, subreddit, start, end)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	stats := d.Walker().Stats()
	ui.PrintSuccess(fmt.Sprintf("Collected %d submissions", len(records)))
	ui.PrintStat("requests", stats.Requests)
	ui.PrintStat("cached pages", stats.CachedPages)
	ui.PrintStat("truncations", stats.Truncations)

	if !fetchOpts.noEnrich && len(records) > 0 {
		attrs := cfg.Enrichment.Attributes
		if len(attrs) == 0 {
			attrs = defaultAttributes
		}

		report, err := d.UpdateSubredditSubmissions(ctx, records, attrs)
		if err != nil {
			return fmt.Errorf("enrichment failed: %w", err)
		}

		ui.PrintSuccess(fmt.Sprintf("Refreshed %s", strings.Join(attrs, ", ")))
		ui.PrintStat("batches", report.Batches)
		ui.PrintStat("cache hits", report.CacheHits)
		ui.PrintStat("live calls", report.LiveCalls)
		if err := report.Err(); err != nil {
			ui.PrintWarning("Some submissions no longer exist", len(report.Missing))
			log.WithError(err).Warn("Records missing from live API")
		}
	}

	return writeRecords(cmd.OutOrStdout(), fetchOpts.output, records)
}

// writeRecords writes one JSON object per line to path, or to w when path
// is empty
func writeRecords(w io.Writer, path string, records []models.Submission) error {
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.ID(), err)
		}
	}

	if path != "" {
		ui.PrintInfo("Written", path)
	}
	return nil
}

// parseTime accepts RFC 3339, a plain date, a date-time without zone
// (read as UTC) or unix seconds
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
