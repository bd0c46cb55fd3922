package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/tui/theme"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the remit log file",
		Long: `Prints today's remit log file. JSON log lines are pretty-printed;
text lines are printed as they are.

Examples:
  # Follow the log while a transfer runs in another terminal
  remit logs -f

  # The last 100 lines of the transfer engine only
  remit logs --tail 100 --component transfer`,
		Args: cobra.NoArgs,
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().IntP("tail", "n", 50, "Number of lines to show from the end of the file (0 for all)")
	cmd.Flags().String("component", "", "Only show lines of this component")
	cmd.Flags().String("file", "", "Read this log file instead of today's")

	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	tailLines, _ := cmd.Flags().GetInt("tail")
	component, _ := cmd.Flags().GetString("component")
	path, _ := cmd.Flags().GetString("file")
	jsonOutput := cli.GetOptions(cmd).JSONOutput

	if path == "" {
		cfg, err := cli.LoadConfig(cmd)
		if err != nil {
			return err
		}
		var logCfg logging.Config
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			return fmt.Errorf("failed to parse 'logging' config: %w", err)
		}
		path = logging.LogFilePath(logCfg)
	}

	offset := int64(0)
	if _, err := os.Stat(path); err != nil {
		if !follow {
			return fmt.Errorf("no log file at %s", path)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Waiting for %s\n", path)
	} else if tailLines > 0 {
		if offset, err = lastLinesOffset(path, tailLines); err != nil {
			return err
		}
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: !follow,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("cannot tail %s: %w", path, err)
	}
	defer t.Cleanup()

	done := cmd.Context().Done()
	out := cmd.OutOrStdout()
	for {
		select {
		case <-done:
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			if !matchesComponent(line.Text, component) {
				continue
			}
			if jsonOutput {
				fmt.Fprintln(out, line.Text)
			} else {
				printLogText(out, line.Text)
			}
		}
	}
}

// lastLinesOffset returns the byte offset at which the last n lines of path start.
func lastLinesOffset(path string, n int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	starts := make([]int64, 0, n+1)
	var pos int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			starts = append(starts, pos)
			if len(starts) > n {
				starts = starts[1:]
			}
			pos += int64(len(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if len(starts) == 0 {
		return 0, nil
	}
	return starts[0], nil
}

func matchesComponent(line, component string) bool {
	if component == "" {
		return true
	}
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err == nil {
		c, _ := logMap["component"].(string)
		return c == component
	}
	return strings.Contains(line, "["+component+"]")
}

// printLogText pretty-prints a JSON log line; other lines are printed raw.
func printLogText(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		fmt.Fprintln(w, line)
		return
	}

	ts, _ := logMap["time"].(string)
	level, _ := logMap["level"].(string)
	msg, _ := logMap["msg"].(string)
	component, _ := logMap["component"].(string)

	parsedTime, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		parsedTime, _ = time.Parse(time.RFC3339, ts)
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = theme.DefaultTheme.Error
	case "warning":
		levelStyle = theme.DefaultTheme.Warning
	case "info":
		levelStyle = theme.DefaultTheme.Info
	default:
		levelStyle = theme.DefaultTheme.Muted
	}

	var keys []string
	for k := range logMap {
		if k != "time" && k != "level" && k != "msg" && k != "component" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", theme.DefaultTheme.Muted.Render(k), logMap[k]))
	}

	fmt.Fprintf(w, "%s %s [%s] %s %s\n",
		parsedTime.Local().Format(time.TimeOnly),
		levelStyle.Render(strings.ToUpper(level)),
		theme.DefaultTheme.Accent.Render(component),
		msg,
		strings.Join(fields, " "),
	)
}
