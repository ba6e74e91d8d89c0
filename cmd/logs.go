// cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		raw    bool
		lines  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return fmt.Errorf("logger.log_file is not set")
			}
			return showLog(cmd.Context(), cmd.OutOrStdout(), path, lines, follow, raw)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines as they are written")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the JSON entries as written")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of trailing lines to print first")
	return cmd
}

// showLog prints the last n lines of path and, when follow is set, every line
// appended afterwards until ctx is done. Unless raw is set, entries are rendered
// like the console log.
func showLog(ctx context.Context, w io.Writer, path string, n int, follow, raw bool) error {
	emit := func(l string) {
		if !raw {
			l = renderEntry(l)
		}
		fmt.Fprintln(w, l)
	}
	last, size, err := lastLines(path, n)
	if err != nil {
		return err
	}
	for _, l := range last {
		emit(l)
	}
	if !follow {
		return nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: size, Whence: io.SeekStart},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow log file: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			emit(line.Text)
		}
	}
}

// lastLines reads path to its end and keeps the final n lines. It also returns the
// offset reached, where following resumes.
func lastLines(path string, n int) ([]string, int64, error) {
	t, err := tail.TailFile(path, tail.Config{MustExist: true, Logger: tail.DiscardingLogger})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read log file: %w", err)
	}
	defer t.Cleanup()

	var (
		ring []string
		size int64
	)
	for line := range t.Lines {
		if line.Err != nil {
			return nil, 0, line.Err
		}
		size += int64(len(line.Text)) + 1
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, line.Text)
	}
	return ring, size, nil
}

// Keys the file encoder writes for every entry.
var entryKeys = map[string]bool{"ts": true, "level": true, "logger": true, "msg": true, "caller": true, "stacktrace": true}

// renderEntry formats one JSON log entry as "ts LEVEL logger: msg k=v ...", with the
// stack trace on the following lines. Lines that are not entries pass through.
func renderEntry(line string) string {
	var e map[string]any
	if err := json.UnmarshalFromString(line, &e); err != nil || e["msg"] == nil {
		return line
	}
	var b strings.Builder
	if ts, ok := e["ts"].(string); ok {
		b.WriteString(ts + " ")
	}
	if lvl, ok := e["level"].(string); ok {
		b.WriteString(strings.ToUpper(lvl) + " ")
	}
	if name, ok := e["logger"].(string); ok {
		b.WriteString(name + ": ")
	}
	fmt.Fprint(&b, e["msg"])

	keys := make([]string, 0, len(e))
	for k := range e {
		if !entryKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := e[k]
		if _, isString := v.(string); !isString {
			if enc, err := json.MarshalToString(v); err == nil {
				v = enc
			}
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	if st, ok := e["stacktrace"].(string); ok && st != "" {
		b.WriteString("\n" + st)
	}
	return b.String()
}
