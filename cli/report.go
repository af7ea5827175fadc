package cli

// This file renders the persisted measurements as top-N tables (or raw CSV)
// so the heaviest compile steps are easy to spot.

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/cmakeperf/cmakeperf/model"
	"github.com/cmakeperf/cmakeperf/store"
)

func (a *App) report(ctx *cli.Context) error {
	storePath := DefaultStore
	if ctx.NArg() > 0 {
		storePath = ctx.Args().First()
	}

	records, err := store.New(a.logger, storePath).Load()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.logger.Warn().Str("store", storePath).Msg("Result store is empty")
		return nil
	}

	switch format := ctx.String("format"); format {
	case "csv":
		return store.WriteCSV(os.Stdout, records)
	case "table":
		n := ctx.Int("top")
		writeTable(os.Stdout, fmt.Sprintf("Top %d by peak memory", n), topByPeak(records, n))
		fmt.Fprintln(os.Stdout)
		writeTable(os.Stdout, fmt.Sprintf("Top %d by duration", n), topByDuration(records, n))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table or csv)", format)
	}
}

// topByPeak returns up to n records ordered by descending peak memory.
func topByPeak(records []model.Measurement, n int) []model.Measurement {
	sorted := make([]model.Measurement, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PeakRSS > sorted[j].PeakRSS
	})
	return truncate(sorted, n)
}

// topByDuration returns up to n records ordered by descending duration.
func topByDuration(records []model.Measurement, n int) []model.Measurement {
	sorted := make([]model.Measurement, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration > sorted[j].Duration
	})
	return truncate(sorted, n)
}

func truncate(records []model.Measurement, n int) []model.Measurement {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}

func writeTable(w io.Writer, title string, records []model.Measurement) {
	fmt.Fprintln(w, title)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPEAK RSS\tTIME")
	for i := range records {
		m := &records[i]
		fmt.Fprintf(tw, "%s\t%s\t%.2fs\n",
			m.Key(),
			humanize.IBytes(m.PeakRSS),
			m.Duration.Seconds())
	}
	tw.Flush()
}
