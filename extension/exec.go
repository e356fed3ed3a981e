package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/use-agent/serpent/models"
)

// execTimeout bounds one hook invocation.
const execTimeout = 2 * time.Minute

// Exec returns a factory for an extension running the executable at path
// once per hook. The program receives the hook name ("results" or
// "metadata") as its only argument and the payload as JSON on stdin. A
// metadata hook may print a JSON object on stdout; its fields replace the
// corresponding metadata fields.
func Exec(path string) Factory {
	return func(env Env) (*Extension, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("custom_func %s does not exist", path), err)
		}
		if info.IsDir() {
			return nil, models.NewScrapeError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("custom_func %s is a directory", path), nil)
		}
		return &Extension{
			Name: "exec:" + path,
			HandleResults: func(ctx context.Context, r Results) error {
				var payload any = r.Data
				if r.Compressed != "" {
					payload = r.Compressed
				}
				_, err := runHook(ctx, path, "results", payload)
				return err
			},
			HandleMetadata: func(ctx context.Context, md *models.Metadata) error {
				out, err := runHook(ctx, path, "metadata", md)
				if err != nil {
					return err
				}
				if len(bytes.TrimSpace(out)) == 0 {
					return nil
				}
				if err := json.Unmarshal(out, md); err != nil {
					return fmt.Errorf("custom_func returned invalid metadata: %w", err)
				}
				return nil
			},
		}, nil
	}
}

func runHook(ctx context.Context, path, hook string, payload any) ([]byte, error) {
	in, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", hook, err)
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, hook)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s hook: %w: %s", hook, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
