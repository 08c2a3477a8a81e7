package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/report"
	"example.com/ulogsink/internal/ulog"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "info":
		infoCmd(os.Args[2:])
	case "check":
		checkCmd(os.Args[2:])
	case "list":
		listCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`ulogctl %s (built %s) <command> [options]

Commands:
  info    --in <file.ulg>
  check   --in <file.ulg>
  list    --dir <logs directory>
  report  --in <file.ulg> [--events <capture-events.jsonl>] [--json <out.json>] [--pdf <out.pdf>]
`, version, buildDate)
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg")
	fs.Parse(args)
	if *in == "" {
		fmt.Fprintln(os.Stderr, "info: --in is required")
		os.Exit(2)
	}

	idx, err := ulog.ScanFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "info: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "File:\t%s\n", *in)
	fmt.Fprintf(w, "ULog version:\t%d\n", idx.Version)
	fmt.Fprintf(w, "Log start:\t%d us\n", idx.TimestampUs)
	fmt.Fprintf(w, "Records:\t%d\n", idx.Records)
	fmt.Fprintf(w, "Record bytes:\t%s\n", common.FormatBytes(idx.DataBytes))
	if idx.Truncated {
		fmt.Fprintf(w, "Truncated at:\toffset %d\n", idx.TruncatedAt)
	}
	types := make([]int, 0, len(idx.TypeCounts))
	for t := range idx.TypeCounts {
		types = append(types, int(t))
	}
	sort.Ints(types)
	for _, t := range types {
		fmt.Fprintf(w, "  type %q:\t%d\n", t, idx.TypeCounts[uint8(t)])
	}
	w.Flush()
}

func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg")
	fs.Parse(args)
	if *in == "" {
		fmt.Fprintln(os.Stderr, "check: --in is required")
		os.Exit(2)
	}

	idx, err := ulog.ScanFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: FAIL: %v\n", err)
		os.Exit(1)
	}
	if idx.Truncated {
		fmt.Printf("check: FAIL: %d complete records, truncated record at offset %d\n", idx.Records, idx.TruncatedAt)
		os.Exit(1)
	}
	fmt.Printf("check: OK: %d records, %s\n", idx.Records, common.FormatBytes(idx.DataBytes))
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dir := fs.String("dir", ".", "logs directory")
	fs.Parse(args)

	logs, err := common.ListLogs(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		os.Exit(1)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Name, common.FormatBytes(l.Size), l.ModTime.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg")
	events := fs.String("events", "", "capture-events.jsonl path")
	jsonOut := fs.String("json", "", "JSON report output")
	pdfOut := fs.String("pdf", "", "PDF report output")
	fs.Parse(args)
	if *in == "" {
		fmt.Fprintln(os.Stderr, "report: --in is required")
		os.Exit(2)
	}
	if *jsonOut == "" && *pdfOut == "" {
		fmt.Fprintln(os.Stderr, "report: at least one of --json or --pdf is required")
		os.Exit(2)
	}

	rep, err := report.Build(*in, *events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
	if *jsonOut != "" {
		if err := report.SaveJSON(rep, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "report: save json: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report: wrote %s\n", *jsonOut)
	}
	if *pdfOut != "" {
		if err := report.SaveCapturePDF(rep, *pdfOut); err != nil {
			fmt.Fprintf(os.Stderr, "report: save pdf: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report: wrote %s\n", *pdfOut)
	}
}
