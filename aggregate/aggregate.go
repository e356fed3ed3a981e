package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/metrics"
	"github.com/use-agent/serpent/models"
)

// Aggregator turns a finished traversal into the scrape output.
type Aggregator struct {
	cfg *config.ScrapeConfig
	ext *extension.Extension

	// SearchEngine and IPInfo are copied into the metadata.
	SearchEngine string
	IPInfo       *models.IPInfo

	now func() time.Time
}

// New returns an aggregator for one scrape call. ext may be nil.
func New(cfg *config.ScrapeConfig, ext *extension.Extension) *Aggregator {
	return &Aggregator{cfg: cfg, ext: ext, SearchEngine: cfg.SearchEngine, now: time.Now}
}

// Finish measures the run, compresses, invokes the extension hooks and
// writes the output file, in that order. start is when the scrape began.
func (a *Aggregator) Finish(ctx context.Context, run *engine.RunResult, start time.Time) (*models.Output, error) {
	elapsed := a.now().Sub(start).Milliseconds()
	var msPerKeyword float64
	if run.NumRequests > 0 {
		msPerKeyword = float64(elapsed) / float64(run.NumRequests)
	}
	slog.Info("scrape finished",
		"engine", a.SearchEngine,
		"requests", run.NumRequests,
		"elapsedMs", elapsed,
		"msPerRequest", msPerKeyword,
	)

	out := &models.Output{Results: run.Results}
	if a.cfg.Compress {
		compressed, err := Compress(run.Results)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeOutput, "failed to compress results", err)
		}
		out.Results = nil
		out.Compressed = compressed
	}

	if a.ext != nil && a.ext.HandleResults != nil {
		payload := extension.Results{Data: run.Results, Compressed: out.Compressed}
		if err := a.ext.HandleResults(ctx, payload); err != nil {
			metrics.HookFailures.WithLabelValues("results").Inc()
			return nil, hookError("results", err)
		}
	}

	out.Metadata = models.Metadata{
		SearchEngine: a.SearchEngine,
		StartedAt:    start,
		ElapsedTime:  elapsed,
		MsPerKeyword: msPerKeyword,
		NumRequests:  run.NumRequests,
		Detections:   run.Detections,
		Errors:       run.Errors,
		IPInfo:       a.IPInfo,
	}
	if a.cfg.ChunkLines != "" {
		out.Metadata.ChunkLines = a.cfg.ChunkLines
		if a.cfg.JobName != "" {
			out.Metadata.ID = a.cfg.JobName + " " + a.cfg.ChunkLines
		}
	}

	if a.ext != nil && a.ext.HandleMetadata != nil {
		if err := a.ext.HandleMetadata(ctx, &out.Metadata); err != nil {
			metrics.HookFailures.WithLabelValues("metadata").Inc()
			return nil, hookError("metadata", err)
		}
	}

	if a.cfg.OutputFile != "" {
		if err := writeResults(a.cfg.OutputFile, run.Results); err != nil {
			return nil, err
		}
		slog.Info("results written", "file", a.cfg.OutputFile)
	}
	return out, nil
}

// writeResults stores the uncompressed results as indented JSON.
func writeResults(path string, results models.Results) error {
	data, err := json.MarshalIndent(results, "", strings.Repeat(" ", 4))
	if err != nil {
		return models.NewScrapeError(models.ErrCodeOutput, "failed to encode results", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.NewScrapeError(models.ErrCodeOutput, fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func hookError(hook string, err error) error {
	if models.CodeOf(err) != models.ErrCodeInternal {
		return err
	}
	return models.NewScrapeError(models.ErrCodeExtensionFailed, hook+" hook failed", err)
}
