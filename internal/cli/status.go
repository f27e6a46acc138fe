package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vietddude/ocrguard/internal/api/handler"
	"github.com/vietddude/ocrguard/internal/core/config"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show circuit and engine pool status of a running server",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "server base URL (default http://localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		_ = godotenv.Load()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := fetchStatus(ctx, http.DefaultClient, addr)
	if err != nil {
		slog.Error("Failed to query server", "addr", addr, "error", err)
		os.Exit(1)
	}
	printStatus(os.Stdout, status)
}

func fetchStatus(ctx context.Context, client *http.Client, addr string) (handler.DetailedHealthResponse, error) {
	var out handler.DetailedHealthResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/v1/health/detailed", nil)
	if err != nil {
		return out, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode status: %w", err)
	}
	return out, nil
}

func printStatus(out io.Writer, s handler.DetailedHealthResponse) {
	c := s.Circuit
	_, _ = fmt.Fprintf(out, "Status:   %s (up %s)\n", s.Status, s.Uptime)
	_, _ = fmt.Fprintf(out, "Circuit:  %s, %d/%d failures", c.StateName, c.FailureCount, c.Threshold)
	if c.RetryAfter > 0 {
		_, _ = fmt.Fprintf(out, ", retry in %s", c.RetryAfter.Round(time.Second))
	}
	if c.LastFailureAt != nil {
		_, _ = fmt.Fprintf(out, ", last failure %s", humanize.Time(*c.LastFailureAt))
	}
	_, _ = fmt.Fprintf(out, "\nWorkers:  %d running\n\n", s.RunningWorkers)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HANDLE\tKEY\tUSES\tBUSY\tCREATED\tLAST USED")
	for _, h := range s.Pool {
		lastUsed := "-"
		if !h.LastUsed.IsZero() {
			lastUsed = humanize.Time(h.LastUsed)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%t\t%s\t%s\n",
			h.ID, h.Key, h.Uses, h.Busy, humanize.Time(h.CreatedAt), lastUsed)
	}
	_ = w.Flush()
}
