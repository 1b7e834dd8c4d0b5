package release

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStore(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "chromadb_all_f")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "laws.db"), []byte("sqlite"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wal", "laws.db-wal"), []byte("wal"), 0o644))

	return dir
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	entries := make(map[string]string)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[header.Name] = string(data)
	}

	return entries
}

func TestArchive(t *testing.T) {
	dir := writeStore(t)
	out := filepath.Join(t.TempDir(), "dist", "store.tar.gz")

	size, err := Archive(dir, out)
	require.NoError(t, err)
	require.Positive(t, size)

	entries := readArchive(t, out)
	assert.Equal(t, "sqlite", entries["chromadb_all_f/laws.db"])
	assert.Equal(t, "wal", entries["chromadb_all_f/wal/laws.db-wal"])
	assert.Contains(t, entries, "chromadb_all_f/wal/")

	_, err = Archive(filepath.Join(dir, "missing"), out)
	require.ErrorContains(t, err, "vector store not found")
}

func TestArchiveStoreFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chromadb_all_f.db")
	require.NoError(t, os.WriteFile(db, []byte("sqlite"), 0o644))
	require.NoError(t, os.WriteFile(db+"-wal", []byte("wal"), 0o644))
	out := filepath.Join(dir, "dist", "store.tar.gz")

	_, err := Archive(db, out)
	require.NoError(t, err)

	entries := readArchive(t, out)
	assert.Equal(t, map[string]string{
		"chromadb_all_f.db":     "sqlite",
		"chromadb_all_f.db-wal": "wal",
	}, entries)

	require.NoError(t, os.Remove(db+"-wal"))
	_, err = Archive(db, out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"chromadb_all_f.db": "sqlite"}, readArchive(t, out))
}

func TestNormalizeRemote(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"git@github.com:mhrlife/troly-index.git", "mhrlife/troly-index"},
		{"https://github.com/mhrlife/troly-index.git", "mhrlife/troly-index"},
		{"https://github.com/mhrlife/troly-index", "mhrlife/troly-index"},
		{"https://gitlab.com/mhrlife/troly-index.git", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRemote(tt.url))
		})
	}
}

func TestDetectRepoFromEnv(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "owner/laws")
	assert.Equal(t, "owner/laws", DetectRepo(context.Background()))
}

type fakeGitHub struct {
	server   *httptest.Server
	released ReleaseRequest
	uploaded []byte
	name     string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/owner/laws/releases", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.released))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Release{
			ID:        7,
			TagName:   f.released.TagName,
			HTMLURL:   "https://github.com/owner/laws/releases/7",
			UploadURL: f.server.URL + "/uploads/7/assets{?name,label}",
		})
	})
	mux.HandleFunc("POST /uploads/7/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/gzip", r.Header.Get("Content-Type"))
		f.name = r.URL.Query().Get("name")
		f.uploaded, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Asset{
			ID:                 9,
			Name:               f.name,
			Size:               int64(len(f.uploaded)),
			BrowserDownloadURL: "https://github.com/owner/laws/releases/download/" + f.name,
		})
	})
	mux.HandleFunc("POST /repos/owner/taken/releases", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func TestPublish(t *testing.T) {
	fake := newFakeGitHub(t)
	gh := NewGitHub("gh-token")
	gh.APIURL = fake.server.URL

	out := filepath.Join(t.TempDir(), "store.tar.gz")
	result, err := gh.Publish(context.Background(), Options{
		Source: writeStore(t),
		Out:    out,
		Repo:   "owner/laws",
		Now:    time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "v20250304-050607", fake.released.TagName)
	assert.Equal(t, "v20250304-050607", fake.released.Name)
	assert.Equal(t, "store.tar.gz", fake.name)
	assert.Equal(t, result.ArchiveSize, int64(len(fake.uploaded)))
	assert.Equal(t, int64(9), result.Asset.ID)
	assert.Equal(t, "https://github.com/owner/laws/releases/7", result.Release.HTMLURL)
}

func TestPublishStoreFileDefaultName(t *testing.T) {
	fake := newFakeGitHub(t)
	gh := NewGitHub("gh-token")
	gh.APIURL = fake.server.URL

	db := filepath.Join(t.TempDir(), "chromadb_all_f.db")
	require.NoError(t, os.WriteFile(db, []byte("sqlite"), 0o644))
	t.Chdir(t.TempDir())

	result, err := gh.Publish(context.Background(), Options{
		Source: db,
		Repo:   "owner/laws",
		Now:    time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("dist", "chromadb_all_f-20250304-050607.tar.gz"), result.Archive)
	assert.Equal(t, "chromadb_all_f-20250304-050607.tar.gz", fake.name)
	assert.Equal(t, map[string]string{"chromadb_all_f.db": "sqlite"}, readArchive(t, result.Archive))
}

func TestPublishErrors(t *testing.T) {
	fake := newFakeGitHub(t)
	dir := writeStore(t)

	gh := NewGitHub("gh-token")
	gh.APIURL = fake.server.URL

	_, err := gh.Publish(context.Background(), Options{
		Source: dir,
		Out:    filepath.Join(t.TempDir(), "a.tar.gz"),
		Repo:   "owner/taken",
		Tag:    "v1",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Validation Failed")

	noToken := NewGitHub("")
	noToken.APIURL = fake.server.URL
	_, err = noToken.Publish(context.Background(), Options{Source: dir, Repo: "owner/laws"})
	require.ErrorContains(t, err, "missing GitHub token")

	_, err = gh.UploadAsset(context.Background(), "{?name}", filepath.Join(dir, "laws.db"))
	require.ErrorIs(t, err, ErrMissingUploadURL)
}
