package tiger

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/fetcher"
	"github.com/cafe-compass/compass-cli/internal/resilience"
)

func testFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	})
}

func TestDownload_Success(t *testing.T) {
	zipContent := createTestZIP(t, map[string]string{
		"test.shp": "fake shapefile data",
		"test.dbf": "fake dbf data",
		"test.shx": "fake shx data",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(zipContent)
	}))
	defer srv.Close()

	destDir := t.TempDir()
	shpPath, err := Download(context.Background(), testFetcher(), srv.URL+"/tl_2024_26_tabblock20.zip", destDir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "tl_2024_26_tabblock20", "test.shp"), shpPath)
	assert.FileExists(t, shpPath)
}

func TestDownload_ReusesZIP(t *testing.T) {
	zipContent := createTestZIP(t, map[string]string{"test.shp": "fake"})

	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		callCount++
		_, _ = w.Write(zipContent)
	}))
	defer srv.Close()

	destDir := t.TempDir()
	url := srv.URL + "/tl_2024_26_tabblock20.zip"

	_, err := Download(context.Background(), testFetcher(), url, destDir)
	require.NoError(t, err)
	_, err = Download(context.Background(), testFetcher(), url, destDir)
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestDownload_NoShapefile(t *testing.T) {
	zipContent := createTestZIP(t, map[string]string{"readme.txt": "nothing"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(zipContent)
	}))
	defer srv.Close()

	_, err := Download(context.Background(), testFetcher(), srv.URL+"/x.zip", t.TempDir())
	assert.ErrorContains(t, err, "no .shp file")
}

func TestDownload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	destDir := t.TempDir()
	_, err := Download(context.Background(), testFetcher(), srv.URL+"/bad.zip", destDir)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(destDir, "bad.zip"))
}

// createTestZIP creates a ZIP file in memory with the given files.
func createTestZIP(t *testing.T, files map[string]string) []byte {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(tmpFile)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, createErr := w.Create(name)
		require.NoError(t, createErr)
		_, writeErr := fw.Write([]byte(content))
		require.NoError(t, writeErr)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	return data
}
