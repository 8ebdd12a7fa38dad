package utils

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdownSanitizes(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nhello **world**\n\n<script>alert(1)</script>\n\n[x](javascript:alert(1))")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>world</strong>")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "javascript:")
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"  <b>bold</b> text ", "bold text"},
		{"<script>x</script>", ""},
		{"<i></i>", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripTags(tt.in), tt.in)
	}
}

func TestRedactBody(t *testing.T) {
	out := RedactBody([]byte(`{"email":"a@b.c","password":"hunter2","nested":{"refresh_token":"abc"},"list":[{"Secret":"s"}]}`))
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, `"abc"`)
	assert.NotContains(t, out, `"s"`)
	assert.Contains(t, out, "a@b.c")
	assert.Contains(t, out, "[REDACTED]")

	assert.Equal(t, "[unparseable]", RedactBody([]byte("password=hunter2")))
}

func TestUniqueUint(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 0, 3, 2, 1}))
	assert.Empty(t, UniqueUint(nil))
}

func TestKeyedLockSerialisesSameKey(t *testing.T) {
	l := NewKeyedLock(0)
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("article:1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestTokenBlacklistAndState(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	bl := NewTokenBlacklist(c)

	bl.Add(ctx, "live", time.Now().Add(time.Hour))
	bl.Add(ctx, "stale", time.Now().Add(-time.Minute))
	assert.True(t, bl.Contains(ctx, "live"))
	assert.False(t, bl.Contains(ctx, "stale"))

	SaveState(ctx, c, "abc", 0)
	assert.False(t, ConsumeState(ctx, c, ""))
	assert.True(t, ConsumeState(ctx, c, "abc"))
	assert.False(t, ConsumeState(ctx, c, "abc"))
}

func TestCaptchaSingleUse(t *testing.T) {
	c := NewCaptcha(NewMemoryCache())
	id, b64, err := c.Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(b64, "data:image/"))
	answer := c.store.Get(id, false)
	require.NotEmpty(t, answer)
	assert.True(t, c.Verify(id, answer))
	assert.False(t, c.Verify(id, answer))
	assert.False(t, c.Verify("", ""))
}
