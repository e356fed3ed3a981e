package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/extension"
	"github.com/use-agent/serpent/models"
)

func sampleResults() models.Results {
	return models.Results{
		"a": {{
			Page:      1,
			URL:       "https://www.google.com/search?q=a",
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Items:     []models.SerpItem{{Rank: 1, Title: "A", Link: "https://a.com"}},
		}},
	}
}

func fixedAggregator(cfg *config.ScrapeConfig, ext *extension.Extension, start time.Time, elapsed time.Duration) *Aggregator {
	a := New(cfg, ext)
	a.now = func() time.Time { return start.Add(elapsed) }
	return a
}

func TestCompressRoundTrip(t *testing.T) {
	in := sampleResults()
	enc, err := Compress(in)
	require.NoError(t, err)
	assert.NotContains(t, enc, "https://a.com")

	out, err := Decompress(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecompress_Invalid(t *testing.T) {
	_, err := Decompress("not base64!")
	assert.Error(t, err)

	_, err = Decompress("aGVsbG8=")
	assert.Error(t, err)
}

func TestFinish_Metadata(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.ChunkLines = "1-100"
	cfg.JobName = "nightly"
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := fixedAggregator(&cfg, nil, start, 1500*time.Millisecond)

	run := &engine.RunResult{
		Results:     sampleResults(),
		NumRequests: 3,
		Detections:  []models.Detection{{Keyword: "b", Page: 1, Reason: "recaptcha"}},
	}
	out, err := a.Finish(context.Background(), run, start)
	require.NoError(t, err)

	md := out.Metadata
	assert.Equal(t, "google", md.SearchEngine)
	assert.Equal(t, int64(1500), md.ElapsedTime)
	assert.Equal(t, 500.0, md.MsPerKeyword)
	assert.Equal(t, 3, md.NumRequests)
	assert.Equal(t, "1-100", md.ChunkLines)
	assert.Equal(t, "nightly 1-100", md.ID)
	assert.Len(t, md.Detections, 1)
	assert.Equal(t, sampleResults(), out.Results)
	assert.False(t, out.IsCompressed())
}

func TestFinish_NoRequests(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	start := time.Now()
	a := fixedAggregator(&cfg, nil, start, time.Second)

	out, err := a.Finish(context.Background(), &engine.RunResult{Results: models.Results{}}, start)
	require.NoError(t, err)
	assert.Zero(t, out.Metadata.MsPerKeyword)
	assert.Empty(t, out.Metadata.ID)
}

func TestFinish_HookOrder(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.Compress = true
	cfg.OutputFile = filepath.Join(t.TempDir(), "out.json")

	var calls []string
	ext := &extension.Extension{
		HandleResults: func(_ context.Context, r extension.Results) error {
			calls = append(calls, "results")
			assert.NotEmpty(t, r.Compressed, "results hook sees the compressed form")
			_, err := os.Stat(cfg.OutputFile)
			assert.True(t, os.IsNotExist(err), "file written after hooks")
			return nil
		},
		HandleMetadata: func(_ context.Context, md *models.Metadata) error {
			calls = append(calls, "metadata")
			assert.Equal(t, 2, md.NumRequests, "metadata is assembled before its hook")
			return nil
		},
	}
	start := time.Now()
	a := fixedAggregator(&cfg, ext, start, time.Second)

	out, err := a.Finish(context.Background(), &engine.RunResult{Results: sampleResults(), NumRequests: 2}, start)
	require.NoError(t, err)
	assert.Equal(t, []string{"results", "metadata"}, calls)
	assert.True(t, out.IsCompressed())
	assert.Nil(t, out.Results)

	decoded, err := Decompress(out.Compressed)
	require.NoError(t, err)
	assert.Equal(t, sampleResults(), decoded)
}

func TestFinish_MetadataOnlyExtension(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	var seen *models.Metadata
	ext := &extension.Extension{
		HandleMetadata: func(_ context.Context, md *models.Metadata) error {
			seen = md
			return nil
		},
	}
	start := time.Now()
	a := fixedAggregator(&cfg, ext, start, time.Second)

	out, err := a.Finish(context.Background(), &engine.RunResult{Results: sampleResults(), NumRequests: 1}, start)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, 1, seen.NumRequests)
	assert.Equal(t, sampleResults(), out.Results)
}

func TestFinish_HookErrorFailsScrape(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	ext := &extension.Extension{
		HandleResults: func(context.Context, extension.Results) error { return errors.New("disk full") },
	}
	a := New(&cfg, ext)

	_, err := a.Finish(context.Background(), &engine.RunResult{Results: sampleResults()}, time.Now())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeExtensionFailed, models.CodeOf(err))
}

func TestFinish_OutputFileIsUncompressed(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.Compress = true
	cfg.OutputFile = filepath.Join(t.TempDir(), "results.json")
	a := New(&cfg, nil)

	_, err := a.Finish(context.Background(), &engine.RunResult{Results: sampleResults(), NumRequests: 1}, time.Now())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"a\": ["), "4-space indentation")

	var got models.Results
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sampleResults(), got)
}

func TestFinish_OutputFileError(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	cfg.OutputFile = filepath.Join(t.TempDir(), "missing", "dir", "out.json")
	a := New(&cfg, nil)

	_, err := a.Finish(context.Background(), &engine.RunResult{Results: sampleResults()}, time.Now())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeOutput, models.CodeOf(err))
}

func TestOutputJSON(t *testing.T) {
	out := models.Output{Compressed: "eJw=", Metadata: models.Metadata{NumRequests: 1}}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results":"eJw="`)

	var back models.Output
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsCompressed())

	out = models.Output{Results: sampleResults()}
	data, err = json.Marshal(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back.IsCompressed())
	assert.Equal(t, sampleResults(), back.Results)
}
