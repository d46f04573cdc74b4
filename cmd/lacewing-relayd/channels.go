package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/spf13/cobra"
)

type channelSummary struct {
	ID      uint16 `json:"id"`
	Name    string `json:"name"`
	Clients int    `json:"clients"`
}

// newChannelsCmd queries a running server's admin HTTP surface. The relay
// keeps no persistent store, so "list" is the only meaningful verb and it
// always reflects live, in-memory state rather than a stored snapshot.
func newChannelsCmd() *cobra.Command {
	var apiAddr string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the live channels on a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The admin surface is served over the same HTTP/3 listener as the
			// WebTransport upgrade endpoint, so it needs an HTTP/3 round tripper,
			// not a plain TCP one.
			client := &http.Client{
				Timeout: 5 * time.Second,
				Transport: &http3.RoundTripper{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec — relay defaults to a self-signed cert
				},
			}
			resp, err := client.Get(fmt.Sprintf("https://%s/api/channels", apiAddr))
			if err != nil {
				return fmt.Errorf("query %s: %w", apiAddr, err)
			}
			defer resp.Body.Close()

			var channels []channelSummary
			if err := json.NewDecoder(resp.Body).Decode(&channels); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if len(channels) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No channels found.")
				return nil
			}
			for _, ch := range channels {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s (%d clients)\n", ch.ID, ch.Name, ch.Clients)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiAddr, "addr", "localhost:6121", "relay admin address (host:port)")
	return cmd
}
