package extension

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/serpent/config"
	"github.com/use-agent/serpent/models"
)

func sampleResults() models.Results {
	return models.Results{
		"a": {{
			Page: 1,
			URL:  "https://www.bing.com/search?q=a",
			Items: []models.SerpItem{
				{Rank: 1, Title: "A", Link: "https://a.com"},
				{Rank: 2, Title: "B", Link: "https://b.com", Extra: map[string]string{"price": "$1"}},
			},
		}},
	}
}

func TestChain(t *testing.T) {
	var calls []string
	mk := func(name string, fail bool) *Extension {
		return &Extension{
			Name: name,
			HandleResults: func(context.Context, Results) error {
				calls = append(calls, name+".results")
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			Close: func() error {
				calls = append(calls, name+".close")
				return nil
			},
		}
	}
	metaOnly := &Extension{Name: "meta", HandleMetadata: func(context.Context, *models.Metadata) error {
		calls = append(calls, "meta.metadata")
		return nil
	}}

	c := Chain(mk("one", false), nil, metaOnly, mk("two", false))
	require.NotNil(t, c)
	require.NoError(t, c.HandleResults(context.Background(), Results{}))
	require.NoError(t, c.HandleMetadata(context.Background(), &models.Metadata{}))
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"one.results", "two.results", "meta.metadata", "one.close", "two.close"}, calls)

	calls = nil
	c = Chain(mk("bad", true), mk("never", false))
	err := c.HandleResults(context.Background(), Results{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeExtensionFailed, models.CodeOf(err))
	assert.Equal(t, []string{"bad.results"}, calls)
}

func TestChain_Degenerate(t *testing.T) {
	assert.Nil(t, Chain())
	assert.Nil(t, Chain(nil, nil))

	only := &Extension{Name: "only"}
	assert.Same(t, only, Chain(only))

	c := Chain(&Extension{Name: "a"}, &Extension{Name: "b"})
	assert.Nil(t, c.HandleResults)
	assert.Nil(t, c.HandleMetadata)
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultScrapeConfig()
	assert.Empty(t, FromConfig(&cfg))

	cfg.CustomFunc = "/bin/true"
	cfg.SQLitePath = ":memory:"
	cfg.WebhookURL = "http://localhost/hook"
	assert.Len(t, FromConfig(&cfg), 3)
}

func TestBuild_ClosesOnFailure(t *testing.T) {
	closed := false
	ok := func(Env) (*Extension, error) {
		return &Extension{Name: "ok", Close: func() error { closed = true; return nil }}, nil
	}
	bad := func(Env) (*Extension, error) { return nil, errors.New("nope") }

	_, err := Build(Env{}, ok, bad)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeExtensionFailed, models.CodeOf(err))
	assert.True(t, closed)
}

func TestExec_MissingFile(t *testing.T) {
	_, err := Exec(filepath.Join(t.TempDir(), "nope.sh"))(Env{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))

	_, err = Exec(t.TempDir())(Env{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
}

func TestExec_Hooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	body := "#!/bin/sh\ncat > \"" + dir + "/$1.json\"\n" +
		"if [ \"$1\" = metadata ]; then echo '{\"id\":\"from-hook\"}'; fi\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	ext, err := Exec(script)(Env{})
	require.NoError(t, err)

	require.NoError(t, ext.HandleResults(context.Background(), Results{Data: sampleResults()}))
	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	var got models.Results
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sampleResults(), got)

	md := &models.Metadata{NumRequests: 4}
	require.NoError(t, ext.HandleMetadata(context.Background(), md))
	assert.Equal(t, "from-hook", md.ID)
	assert.Equal(t, 4, md.NumRequests)

	require.NoError(t, ext.HandleResults(context.Background(), Results{Data: sampleResults(), Compressed: "eJw="}))
	data, err = os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	assert.Equal(t, `"eJw="`, string(data))
}

func TestExec_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "fail.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho broken >&2\nexit 3\n"), 0o755))

	ext, err := Exec(script)(Env{})
	require.NoError(t, err)
	err = ext.HandleResults(context.Background(), Results{Data: sampleResults()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestWebhook_SignedDelivery(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "sha256="+Sign("s3cret", body), r.Header.Get(SignatureHeader))
		var ev Event
		assert.NoError(t, json.Unmarshal(body, &ev))
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	ext, err := Webhook(srv.URL, "s3cret")(Env{Context: map[string]any{"job_id": "j1"}})
	require.NoError(t, err)
	require.NoError(t, ext.HandleResults(context.Background(), Results{Data: sampleResults()}))
	require.NoError(t, ext.HandleMetadata(context.Background(), &models.Metadata{NumRequests: 1}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "scrape.results", events[0].Type)
	assert.Equal(t, "j1", events[0].JobID)
	assert.Equal(t, "scrape.metadata", events[1].Type)
}

func TestDeliverRetry(t *testing.T) {
	saved := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = saved }()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	require.NoError(t, DeliverRetry(context.Background(), srv.URL, "", NewEvent("job.completed", "j", nil)))
	assert.Equal(t, int32(3), attempts.Load())

	attempts.Store(-10)
	err := DeliverRetry(context.Background(), srv.URL, "", NewEvent("job.completed", "j", nil))
	assert.Error(t, err)
}

func TestSQLite_StoresRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serp.db")
	ext, err := SQLite(path)(Env{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ext.HandleResults(ctx, Results{Data: sampleResults(), Compressed: "ignored"}))
	require.NoError(t, ext.HandleMetadata(ctx, &models.Metadata{SearchEngine: "bing", NumRequests: 1}))
	require.NoError(t, ext.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM serp_results WHERE keyword = 'a'`).Scan(&n))
	assert.Equal(t, 2, n)

	var extra string
	require.NoError(t, db.QueryRow(`SELECT extra FROM serp_results WHERE rank = 2`).Scan(&extra))
	assert.JSONEq(t, `{"price":"$1"}`, extra)

	var engine string
	var runs int
	require.NoError(t, db.QueryRow(`SELECT search_engine, COUNT(*) FROM runs`).Scan(&engine, &runs))
	assert.Equal(t, "bing", engine)
	assert.Equal(t, 1, runs)

	var linked int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM serp_results r JOIN runs ON runs.id = r.run_id`).Scan(&linked))
	assert.Equal(t, 2, linked)
}
