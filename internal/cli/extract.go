package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/ocrguard/internal/control"
	"github.com/vietddude/ocrguard/internal/core/domain"
)

var parallel int

var extractCmd = &cobra.Command{
	Use:   "extract [file]...",
	Short: "Extract text from image files without starting the server",
	Args:  cobra.MinimumNArgs(1),
	Run:   runExtract,
}

func init() {
	extractCmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "files processed concurrently")
	rootCmd.AddCommand(extractCmd)
}

// fileResult is the outcome for one command-line file.
type fileResult struct {
	path string
	res  domain.ExtractionResult
	err  error
}

func runExtract(cmd *cobra.Command, args []string) {
	_, controlCfg := loadConfig()

	svc, err := control.NewService(controlCfg, engineFactory)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := extractFiles(ctx, svc, args, parallel)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(closeCtx); err != nil {
		slog.Warn("Failed to close engines", "error", err)
	}

	if failed := printResults(os.Stdout, results); failed > 0 {
		os.Exit(1)
	}
}

// extractor is the part of control.Service the command uses.
type extractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error)
}

// extractFiles runs every path through svc, at most limit at a time. Results
// keep the argument order.
func extractFiles(ctx context.Context, svc extractor, paths []string, limit int) []fileResult {
	if limit < 1 {
		limit = 1
	}
	results := make([]fileResult, len(paths))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			res, err := svc.Extract(ctx, domain.ExtractionRequest{Image: domain.PathRef(path)})
			results[i] = fileResult{path: path, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printResults(w io.Writer, results []fileResult) int {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "==> %s: FAILED (%s)\n%v\n\n", r.path, domain.KindOf(r.err), r.err)
			continue
		}
		_, _ = fmt.Fprintf(w, "==> %s (%s, %s, %d attempt(s), %s)\n%s\n\n",
			r.path, r.res.Format, humanize.Bytes(uint64(r.res.ImageSize)), r.res.Attempts,
			r.res.TotalDuration.Round(time.Millisecond), r.res.Text)
	}
	return failed
}
