package cmd

import (
	"github.com/grovetools/remit/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput lists the directories remit reads and writes.
type PathsOutput struct {
	ConfigDir      string `json:"config_dir"`
	StateDir       string `json:"state_dir"`
	CacheDir       string `json:"cache_dir"`
	RuntimeDir     string `json:"runtime_dir"`
	SessionsDir    string `json:"sessions_dir"`
	LogsDir        string `json:"logs_dir"`
	ScreenshotsDir string `json:"screenshots_dir"`
	PidFile        string `json:"pid_file"`
}

func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by remit",
		Long: `Print the paths used by remit as JSON.

REMIT_HOME moves everything under one directory; otherwise the XDG base
directories are used. Session records and failure screenshots live under
the state directory, the API server pid file under the runtime directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), PathsOutput{
				ConfigDir:      paths.ConfigDir(),
				StateDir:       paths.StateDir(),
				CacheDir:       paths.CacheDir(),
				RuntimeDir:     paths.RuntimeDir(),
				SessionsDir:    paths.SessionsDir(),
				LogsDir:        paths.LogsDir(),
				ScreenshotsDir: paths.ScreenshotsDir(),
				PidFile:        paths.PidFilePath(),
			})
		},
	}
}
