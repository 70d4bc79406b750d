package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server for engine status",
		Long: `Status fetches /api/v1/status from a running poolmind server and
pretty-prints the reply. The default address matches the default
serve binding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(flagAddr)
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8000", "Server address host:port")
	return cmd
}

func runStatus(addr string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/status", addr))
	if err != nil {
		return fmt.Errorf("reach server at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	var pretty json.RawMessage = body
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("format status response: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
