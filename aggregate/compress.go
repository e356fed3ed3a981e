package aggregate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/use-agent/serpent/models"
)

// Compress encodes results as base64(zlib(JSON)).
func Compress(results models.Results) (string, error) {
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("aggregate: marshal results: %w", err)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("aggregate: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("aggregate: deflate: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress inverts Compress.
func Decompress(encoded string) (models.Results, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("aggregate: decode base64: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("aggregate: inflate: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("aggregate: inflate: %w", err)
	}
	var results models.Results
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("aggregate: unmarshal results: %w", err)
	}
	return results, nil
}
