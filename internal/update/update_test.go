package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewer(t *testing.T) {
	assert.True(t, Newer("v1.2.0", "1.1.9"))
	assert.True(t, Newer("1.10.0", "1.9.0"))
	assert.False(t, Newer("v1.0.0", "1.0.0"))
	assert.False(t, Newer("0.9", "1.0.0"))
	assert.False(t, Newer("latest", "1.0.0"))
	assert.True(t, Newer("1.0.1", "dev"))
}

func serve(t *testing.T, body string, status int) *Checker {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return NewChecker(ts.URL)
}

func TestCheckPrefersBinaryAsset(t *testing.T) {
	c := serve(t, `{"tag_name":"v1.3.0","html_url":"https://example.test/rel",
		"assets":[{"name":"notes.txt","browser_download_url":"https://example.test/notes"},
		{"name":"autorndc.zip","browser_download_url":"https://example.test/autorndc.zip"}]}`, http.StatusOK)

	res, err := c.Check(context.Background(), "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, Result{Current: "1.2.0", Latest: "1.3.0", Available: true, URL: "https://example.test/autorndc.zip"}, res)
}

func TestCheckFallsBackToReleasePage(t *testing.T) {
	c := serve(t, `{"tag_name":"v2.0.0","html_url":"https://example.test/rel"}`, http.StatusOK)
	res, err := c.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "https://example.test/rel", res.URL)
}

func TestCheckUpToDate(t *testing.T) {
	c := serve(t, `{"tag_name":"v1.0.0"}`, http.StatusOK)
	res, err := c.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Empty(t, res.URL)
}

func TestCheckHTTPError(t *testing.T) {
	c := serve(t, `rate limited`, http.StatusForbidden)
	_, err := c.Check(context.Background(), "1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
