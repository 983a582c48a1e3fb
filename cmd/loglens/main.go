package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coffersTech/loglens/internal/cluster"
	"github.com/coffersTech/loglens/internal/export"
	"github.com/coffersTech/loglens/internal/filter"
	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/session"
	"github.com/coffersTech/loglens/internal/task"
)

func main() {
	file := flag.String("file", "", "Path to the .log file to inspect")
	format := flag.String("format", "plain", "Line format: plain or json (never auto-detected)")
	pattern := flag.String("pattern", "", "Regex filter over raw lines")
	levels := flag.String("levels", "", "Comma-separated accepted levels (e.g. ERROR,WARN)")
	from := flag.String("from", "", "Inclusive start time (2006-01-02 15:04)")
	to := flag.String("to", "", "Inclusive end time (2006-01-02 15:04)")
	clusters := flag.Int("clusters", 0, "Print the top N message clusters")
	rows := flag.Int("rows", 0, "Print the first N rows of the active view")
	exportPath := flag.String("export", "", "Export destination (.csv/.jsonl/.html, .gz accepted)")
	exportFormat := flag.String("export-format", "csv", "Export format: csv, jsonl or html")
	maxRows := flag.Int("max-rows", 0, "Cap exported rows (0 = all)")
	workers := flag.Int("workers", 0, "Background worker pool size")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := session.Options{Workers: *workers}
	switch *format {
	case "plain":
		opts.Format = index.FormatPlain
	case "json":
		opts.Format = index.FormatJSON
	default:
		log.Fatalf("Unknown line format: %q", *format)
	}

	crit, hasFilter, err := buildCriteria(*pattern, *levels, *from, *to)
	if err != nil {
		log.Fatalf("Invalid filter: %v", err)
	}

	var exp *export.Options
	if *exportPath != "" {
		f, err := export.ParseFormat(*exportFormat)
		if err != nil {
			log.Fatalf("Invalid export: %v", err)
		}
		exp = &export.Options{Format: f, Path: *exportPath, MaxRows: *maxRows}
	}

	sess, err := session.Open(*file, opts)
	if err != nil {
		log.Fatalf("Cannot open %s: %v", *file, err)
	}
	defer sess.Close()
	log.Printf("Opened %s", *file)

	// SIGINT cancels in-flight work by tearing the session down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Printf("Received signal: %v. Cancelling...", sig)
		sess.Close()
		os.Exit(1)
	}()

	drive(sess, crit, hasFilter, *clusters, *rows, exp)
}

// drive reacts to delivered notifications, submitting each stage when its
// predecessor's snapshot has been published.
func drive(sess *session.Session, crit filter.Criteria, hasFilter bool, topClusters, printRows int, exp *export.Options) {
	lastProgress := time.Now()

	for ev := range sess.Events() {
		switch ev.Type {
		case task.Progress:
			if time.Since(lastProgress) >= time.Second {
				log.Printf("%s: %d/%d", ev.Kind, ev.Done, ev.Tot)
				lastProgress = time.Now()
			}

		case task.Cancelled:
			log.Printf("%s cancelled", ev.Kind)
			return

		case task.Failed:
			log.Printf("%s failed: %v", ev.Kind, ev.Err)
			return

		case task.Completed:
			switch ev.Kind {
			case task.KindIndex:
				printIndexSummary(sess)
				if hasFilter {
					if _, err := sess.SubmitFilter(crit); err != nil {
						log.Printf("Filter rejected: %v", err)
						return
					}
					continue
				}
				if done := afterView(sess, topClusters, printRows, exp); done {
					return
				}

			case task.KindFilter:
				log.Printf("Filter matched %d rows", sess.RowCount())
				if done := afterView(sess, topClusters, printRows, exp); done {
					return
				}

			case task.KindCluster:
				printClusters(sess.Clusters(), topClusters)
				if exp != nil {
					if _, err := sess.SubmitExport(*exp); err != nil {
						log.Printf("Export rejected: %v", err)
						return
					}
					continue
				}
				return

			case task.KindExport:
				log.Printf("Exported: %s", exp.Path)
				return
			}
		}
	}
}

// afterView runs the post-view stages: row printout, clustering, export.
// Returns true when nothing is left to wait for.
func afterView(sess *session.Session, topClusters, printRows int, exp *export.Options) bool {
	if printRows > 0 {
		for _, r := range sess.Rows(0, printRows) {
			fmt.Printf("%-19s %-7s %s\n", r.Timestamp, index.DecodeLevel(r.Level), r.Message)
		}
	}
	if topClusters > 0 {
		if _, err := sess.SubmitCluster(); err != nil {
			log.Printf("Cluster rejected: %v", err)
			return true
		}
		return false
	}
	if exp != nil {
		if _, err := sess.SubmitExport(*exp); err != nil {
			log.Printf("Export rejected: %v", err)
			return true
		}
		return false
	}
	return true
}

func printIndexSummary(sess *session.Session) {
	total := sess.RowCount()
	log.Printf("Index complete: %d lines", total)

	points := sess.Histogram()
	if len(points) > 0 {
		first := index.FormatMinute(points[0].Minute)
		last := index.FormatMinute(points[len(points)-1].Minute)
		log.Printf("Activity: %s .. %s (%d active minutes)", first, last, len(points))
	}
	for _, lc := range sess.LevelCounts() {
		log.Printf("  %-7s %d", lc.Level, lc.Count)
	}
}

func printClusters(entries []cluster.Entry, top int) {
	if top > len(entries) {
		top = len(entries)
	}
	log.Printf("Clusters: %d distinct signatures", len(entries))
	for _, e := range entries[:top] {
		fmt.Printf("%8d  %s\n", e.Count, e.Signature)
	}
}

// buildCriteria assembles FilterCriteria from the flag values.
func buildCriteria(pattern, levels, from, to string) (filter.Criteria, bool, error) {
	crit := filter.Criteria{Pattern: pattern}

	if levels != "" {
		for _, tok := range strings.Split(levels, ",") {
			tok = strings.ToUpper(strings.TrimSpace(tok))
			if tok == "" {
				continue
			}
			code := index.EncodeLevel(tok)
			if code == index.LevelUnknown && tok != "UNKNOWN" {
				return crit, false, fmt.Errorf("unknown level %q", tok)
			}
			crit.Levels = append(crit.Levels, code)
		}
	}

	var err error
	if crit.MinMinute, err = parseMinute(from); err != nil {
		return crit, false, err
	}
	if crit.MaxMinute, err = parseMinute(to); err != nil {
		return crit, false, err
	}

	return crit, !crit.IsEmpty(), nil
}

func parseMinute(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			_, mk := index.TimeToKeys(t)
			return mk, nil
		}
	}
	return 0, fmt.Errorf("unparsable time %q", s)
}
