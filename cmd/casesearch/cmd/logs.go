package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/casesearch/internal/logging"
)

// maxLogLine bounds one JSON log record.
const maxLogLine = 1 << 20

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Show the last entries of the casesearch log file
(~/.casesearch/logs/casesearch.log by default).`,
		Example: `  casesearch logs -n 100
  casesearch logs --level error
  casesearch logs --filter search_completed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries matching this pattern (regex)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Path to log file")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the JSON records unchanged")

	return cmd
}

type logsOptions struct {
	lines  int
	level  string
	filter string
	file   string
	raw    bool
}

func runLogs(w io.Writer, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.file)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := tailEntries(f, opts, pattern)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if opts.raw {
			_, _ = fmt.Fprintln(w, e.raw)
			continue
		}
		_, _ = fmt.Fprintln(w, e.String())
	}
	return nil
}

// logEntry is one parsed JSON log record.
type logEntry struct {
	raw    string
	time   string
	level  string
	msg    string
	fields map[string]any
}

// String formats the entry as "time LEVEL msg key=value ...".
func (e logEntry) String() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", e.time, e.level, e.msg)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.fields[k])
	}
	return sb.String()
}

// tailEntries returns the last opts.lines records that pass the level and
// pattern filters. Lines that are not JSON are kept as messages.
func tailEntries(r io.Reader, opts logsOptions, pattern *regexp.Regexp) ([]logEntry, error) {
	minLevel := logging.LevelFromString(opts.level)
	n := max(opts.lines, 1)
	ring := make([]logEntry, 0, n)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := parseLogLine(line)
		if opts.level != "" && logging.LevelFromString(e.level) < minLevel {
			continue
		}
		if pattern != nil && !pattern.MatchString(line) {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return ring, nil
}

func parseLogLine(line string) logEntry {
	e := logEntry{raw: line, msg: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return e
	}
	e.time, _ = fields["time"].(string)
	e.level, _ = fields["level"].(string)
	e.msg, _ = fields["msg"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	e.fields = fields
	return e
}
