// Package main implements the dispatchctl CLI for manual operations
// against the dispatchd HTTP surface.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the dispatchd HTTP server.
	serverURL string
	// version information.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "CLI for dispatchd HTTP server operations",
	Long: `dispatchctl is a command-line interface for inspecting a running
dispatchd daemon: health, dashboard aggregates, and the task queue.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9815", "dispatchd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(completeCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/health", nil)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show queue aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/dashboard", nil)
	},
}

var (
	queueFilter   string
	queuePriority string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the task queue",
	Long: `List the task queue.

Examples:
  # Ready tasks, most urgent first
  dispatchctl queue

  # Blocked tasks only
  dispatchctl queue --filter blocked

  # Critical tasks across the whole queue
  dispatchctl queue --filter all --priority critical`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if queueFilter != "" {
			q.Set("filter", queueFilter)
		}
		if queuePriority != "" {
			q.Set("priority", queuePriority)
		}
		return getJSON("/api/v1/queue", q)
	},
}

func init() {
	queueCmd.Flags().StringVar(&queueFilter, "filter", "", "ready, blocked, or all")
	queueCmd.Flags().StringVar(&queuePriority, "priority", "", "critical, high, medium, or low")
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <task-id>",
	Short: "Dispatch a task and print its routing directive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/dispatch", map[string]any{"task_id": args[0]})
	},
}

var completeStatus string

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Settle the executing task's status without derived work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/complete", map[string]any{
			"task_id": args[0],
			"status":  completeStatus,
		})
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeStatus, "status", "done", "status to apply")
}

// getJSON fetches a path and pretty-prints the JSON response.
func getJSON(path string, query url.Values) error {
	u := serverURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return printJSON(body)
}

// postJSON posts a JSON payload and pretty-prints the response.
func postJSON(path string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return printJSON(body)
}

func printJSON(body []byte) error {
	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
