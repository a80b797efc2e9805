package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running Session Vigil sidecar",
	Long: `Stop a running Session Vigil sidecar by reading its PID file and sending SIGTERM.

The PID file is located at ~/.session-vigil/server.pid. If the sidecar
does not exit within the grace period it is killed.

Examples:
  # Stop the running sidecar
  session-vigil stop

  # Allow a longer drain before the hard kill
  session-vigil stop --timeout 30s`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "how long to wait for graceful exit before killing")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := pidFilePath()

	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no server PID file found at %s\nIs the sidecar running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}
	if !processIsAlive(proc) {
		os.Remove(pidPath)
		return fmt.Errorf("server process %d is not running (stale PID file removed)", pid)
	}

	// SIGTERM on Unix, TerminateProcess on Windows.
	fmt.Fprintf(os.Stderr, "Stopping Session Vigil (PID %d)...\n", pid)
	if err := sendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if waitForExit(proc, stopTimeout) {
		os.Remove(pidPath)
		fmt.Fprintf(os.Stderr, "Server stopped.\n")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Server did not stop within %s, sending SIGKILL...\n", stopTimeout)
	_ = proc.Kill()
	os.Remove(pidPath)
	fmt.Fprintf(os.Stderr, "Server killed.\n")
	return nil
}

// waitForExit polls until the process exits or the grace period runs
// out. Returns true when the process is gone.
func waitForExit(proc *os.Process, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		if !processIsAlive(proc) {
			return true
		}
	}
	return !processIsAlive(proc)
}

// readPIDFile reads a PID from the given file path. Returns 0 if unreadable.
func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
