package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build information. Populated at build time via -ldflags; when built
// without them (go install, go run) the commit falls back to the VCS
// stamp embedded by the toolchain.
var (
	Version   = "0.5.0"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build date of session-vigil.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("session-vigil %s\n", Version)
		fmt.Printf("  Commit:     %s\n", resolveCommit())
		fmt.Printf("  Built:      %s\n", BuildDate)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func resolveCommit() string {
	if Commit != "none" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return Commit
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
