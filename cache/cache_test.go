package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/serpent/models"
)

func TestKey(t *testing.T) {
	a := Key("google", []string{"a", "b"}, 1, map[string]string{"hl": "en", "gl": "us"}, nil)
	b := Key("google", []string{"a", "b"}, 1, map[string]string{"gl": "us", "hl": "en"}, nil)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("bing", []string{"a", "b"}, 1, map[string]string{"hl": "en", "gl": "us"}, nil))
	assert.NotEqual(t, a, Key("google", []string{"b", "a"}, 1, map[string]string{"hl": "en", "gl": "us"}, nil))
	assert.NotEqual(t, a, Key("google", []string{"a", "b"}, 2, map[string]string{"hl": "en", "gl": "us"}, nil))
	assert.NotEqual(t, a, Key("google", []string{"a", "b"}, 1, map[string]string{"hl": "en", "gl": "us"}, map[string]any{"compress": true}))
}

func TestGetSet(t *testing.T) {
	c := New(10)
	defer c.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	out := &models.Output{Metadata: models.Metadata{NumRequests: 1}}
	c.Set("k", out)

	_, ok := c.Get("k", 0)
	assert.False(t, ok, "max_age 0 bypasses the cache")

	got, ok := c.Get("k", 1000)
	assert.True(t, ok)
	assert.Same(t, out, got)

	clock = clock.Add(2 * time.Second)
	_, ok = c.Get("k", 1000)
	assert.False(t, ok, "entry older than max_age")

	_, ok = c.Get("missing", 1000)
	assert.False(t, ok)
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	c.Set("a", &models.Output{})
	c.Set("b", &models.Output{})
	c.Set("c", &models.Output{})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a", int(time.Hour/time.Millisecond))
	assert.False(t, ok)
	_, ok = c.Get("c", int(time.Hour/time.Millisecond))
	assert.True(t, ok)
}

func TestEvictExpired(t *testing.T) {
	c := New(5)
	defer c.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("old", &models.Output{})
	clock = clock.Add(2 * time.Hour)
	c.Set("new", &models.Output{})
	c.evictExpired()

	assert.Equal(t, 1, c.Len())
}
