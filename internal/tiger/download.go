package tiger

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/fetcher"
)

// Download fetches a TIGER/Line ZIP into destDir, extracts it and returns
// the path to the extracted .shp file. An existing non-empty ZIP is reused.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}

	zipName := path.Base(url)
	if zipName == "" || zipName == "/" || zipName == "." {
		return "", eris.Errorf("tiger: no file name in url %q", url)
	}
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER shapefile")
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
		log.Info("downloaded TIGER shapefile", zap.Int64("bytes", n))
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, filepath.Ext(zipName)))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create extract dir")
	}

	files, err := fetcher.ExtractZIP(zipPath, extractDir)
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract ZIP")
	}

	shpPath, ok := fetcher.FindByExt(files, ".shp")
	if !ok {
		return "", eris.Errorf("tiger: no .shp file in %s", zipName)
	}
	return shpPath, nil
}
