package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sitegate/pkg/events"
)

type eventsPage struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

func eventsCmd() *cobra.Command {
	var (
		limit     int
		eventType string
		asJSON    bool
		retries   int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent security events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client := &http.Client{Timeout: 10 * time.Second}
			page, err := fetchEvents(ctx, client, newRetrier(500, 8000, retries), serverURL, limit, eventType)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			printEvents(cmd.OutOrStdout(), page.Events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "Only show events of this type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	cmd.Flags().IntVar(&retries, "retries", 3, "Retries on 429 and 5xx responses")
	return cmd
}

func fetchEvents(ctx context.Context, client *http.Client, r *retrier, base string, limit int, eventType string) (*eventsPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if eventType != "" {
		q.Set("type", eventType)
	}
	endpoint := strings.TrimRight(base, "/") + "/api/admin/events"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var page eventsPage
	err := r.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		defer resp.Body.Close()

		if isRetryableStatus(resp) {
			return newRetryableStatusError(resp)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
			}
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return json.Unmarshal(body, &page)
	}, isRetryableHTTP)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func printEvents(out io.Writer, list []events.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tIP\tDETAILS")
	for _, ev := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.IP, formatDetails(ev.Details))
	}
	w.Flush()
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}
