package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/generator"
	"github.com/newthinker/nextsignal/internal/selector"
	"github.com/newthinker/nextsignal/internal/source"
	"github.com/newthinker/nextsignal/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	nextMarket   string
	nextAt       string
	nextDelay    time.Duration
	nextFile     string
	nextFallback bool
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Fetch the signal list once and print the next signals",
	Long: `Fetch the signal list once, run the selection for a market and print it as JSON.
Live prints the next upcoming signal for the time of day; otc prints the whole OTC group.
With --archive-fallback a failed fetch falls back to the newest archived snapshot.`,
	Example: `  nextsignal next --market live
  nextsignal next --market otc --at 21:30
  nextsignal next --file signals.json --delay 5s
  nextsignal next -c config.yaml --archive-fallback`,
	RunE: runNext,
}

func init() {
	nextCmd.Flags().StringVarP(&nextMarket, "market", "m", "live", "market: live or otc")
	nextCmd.Flags().StringVar(&nextAt, "at", "", "time of day HH:MM (default now)")
	nextCmd.Flags().DurationVar(&nextDelay, "delay", 0, "wait before printing the selection")
	nextCmd.Flags().StringVarP(&nextFile, "file", "f", "", "read the signal list from a local file instead of the source url")
	nextCmd.Flags().BoolVar(&nextFallback, "archive-fallback", false, "use the newest archived snapshot when the fetch fails")
	rootCmd.AddCommand(nextCmd)
}

// nextOptions controls one printNext run.
type nextOptions struct {
	Market   core.Market
	At       *core.Clock // nil means now in Location
	Location *time.Location
	Delay    time.Duration
	Fallback *archive.Snapshots
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if debug {
		if log, err = newLogger(cfg); err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer log.Sync()
	}

	opts := nextOptions{Delay: nextDelay}
	if opts.Market, err = core.ParseMarket(nextMarket); err != nil {
		return err
	}
	if nextAt != "" {
		c, err := core.ParseClock(nextAt)
		if err != nil {
			return err
		}
		opts.At = &c
	}
	if opts.Location, err = cfg.Generator.Location(); err != nil {
		return err
	}
	if nextFallback {
		if opts.Fallback, err = buildArchive(cfg); err != nil {
			return fmt.Errorf("creating archive: %w", err)
		}
		if opts.Fallback == nil {
			return fmt.Errorf("--archive-fallback needs storage.archive configured")
		}
	}

	var fetcher source.Fetcher = source.New(cfg.Source)
	if nextFile != "" {
		data, err := os.ReadFile(nextFile)
		if err != nil {
			return fmt.Errorf("reading signal file: %w", err)
		}
		set, err := source.Decode(data)
		if err != nil {
			return err
		}
		fetcher = source.StaticFetcher{Set: set}
	}

	return printNext(cmd.Context(), cmd.OutOrStdout(), fetcher, opts, log)
}

// printNext loads one snapshot, waits for the reveal and writes the selection.
// A failed fetch is returned unless an archived snapshot can stand in for it;
// an empty live group is core.ErrNoSignal.
func printNext(ctx context.Context, out io.Writer, fetcher source.Fetcher, opts nextOptions, log *zap.Logger) error {
	res := source.NewRepository(fetcher, source.WithLogger(log)).Load(ctx)
	set := res.Set
	if !res.OK() {
		if opts.Fallback == nil {
			return res.Err
		}
		archived, e, err := opts.Fallback.Latest(ctx, time.Now())
		if err != nil {
			log.Warn("no archived snapshot to fall back to", zap.Error(err))
			return res.Err
		}
		log.Warn("fetch failed, using archived snapshot", zap.String("snapshot", e.ID), zap.Error(res.Err))
		set = archived
	}

	now := core.ClockOf(time.Now().In(opts.location()))
	if opts.At != nil {
		now = *opts.At
	}

	signals, err := selector.ForMarket(set, opts.Market, now)
	if err != nil {
		return err
	}
	if opts.Market == core.MarketLive && len(signals) == 0 {
		return core.ErrNoSignal
	}

	if opts.Delay > 0 {
		select {
		case <-time.After(opts.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := sonic.ConfigStd.MarshalIndent(generator.Result{
		Market:  opts.Market,
		At:      now.String(),
		Signals: signals,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func (o nextOptions) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}
