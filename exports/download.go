package exports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/melbahja/got"
)

// Download fetches a generated report archive to destPath. Gzip archives
// are decompressed in place; the returned path is the file that ended up
// on disk.
func (s *Service) Download(ctx context.Context, downloadURL, destPath string) (string, error) {
	if downloadURL == "" {
		return "", fmt.Errorf("download URL is empty")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	if err := downloadFile(ctx, s.api.HTTPClient(), downloadURL, destPath); err != nil {
		return "", fmt.Errorf("download report: %w", err)
	}

	if !isGzip(destPath) {
		return destPath, nil
	}

	decompressed := strings.TrimSuffix(destPath, ".gz")
	if decompressed == destPath {
		decompressed = destPath + ".out"
	}
	if err := gunzipFile(destPath, decompressed); err != nil {
		return "", fmt.Errorf("decompress report: %w", err)
	}
	if err := os.Remove(destPath); err != nil {
		s.logger.Warnf("Failed to remove compressed report %s: %s", destPath, err)
	}
	return decompressed, nil
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}

func isGzip(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	var magic [2]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return false
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}

func gunzipFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	reader, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer reader.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
