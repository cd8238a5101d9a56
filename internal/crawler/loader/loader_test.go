package loader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadTxtPromotesBareHostnames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example.com\nb.example.com\n\n  \n"), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}

func TestLoadCSVTakesFirstColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.csv")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example.com,extra\nnot-a-url,extra\nhttps://b.example.com\n"), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}

func TestLoadJSONCollectsStringLeaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.json")
	body := `{"items": [{"url": "https://a.example.com"}, "https://b.example.com"], "ignored": 5}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}

func TestLoadDeduplicatesPreservingOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example.com\nhttps://b.example.com\nhttps://a.example.com\n"), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}

func TestLoadMissingSourceIsUnavailable(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	_, err := l.Load("/nonexistent/path/urls.txt", Options{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestLoadEmptyValidSourceReturnsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{})
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestLoadRemoteNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(zaptest.NewLogger(t))
	_, err := l.Load(srv.URL+"/missing.txt", Options{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestLoadRemoteTxt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://remote.example.com\n"))
	}))
	defer srv.Close()

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(srv.URL+"/list.txt", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://remote.example.com"}, urls)
}

func TestRewriteBlobURL(t *testing.T) {
	got := rewriteBlobURL("https://github.com/acme/repo/blob/main/urls.txt")
	assert.Equal(t, "https://raw.githubusercontent.com/acme/repo/main/urls.txt", got)
}

func TestRewriteBlobURLLeavesNonBlobUnchanged(t *testing.T) {
	got := rewriteBlobURL("https://raw.githubusercontent.com/acme/repo/main/urls.txt")
	assert.Equal(t, "https://raw.githubusercontent.com/acme/repo/main/urls.txt", got)
}

func TestLoadNumUrlsCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example.com\nhttps://b.example.com\nhttps://c.example.com\n"), 0o644))

	l := New(zaptest.NewLogger(t))
	urls, err := l.Load(path, Options{NumUrls: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}
