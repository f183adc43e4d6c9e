package builder

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// Manifest declares the expected contents of a provider's output archive
type Manifest struct {
	Archive string          `yaml:"archive"`
	Entries []ManifestEntry `yaml:"entries"`
}

// ManifestEntry is one file the build is expected to produce. Optional
// entries may be absent without failing the package stage.
type ManifestEntry struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

// LoadManifest reads and validates a package manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}

	if m.Archive == "" {
		return nil, fmt.Errorf("manifest %s: archive name is empty", filepath.Base(path))
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("manifest %s: no entries", filepath.Base(path))
	}

	return &m, nil
}

// PackageArchive writes the manifest's present files from srcDir into a
// zstd-compressed tar at destPath. The archive is staged under a temporary
// name and renamed into place, so a partially written archive is never
// visible at the destination. A checksums.txt entry records the sha256 and
// size of every packaged file.
func PackageArchive(ctx context.Context, manifest *Manifest, srcDir, destPath string, logger arbor.ILogger) error {
	included, err := resolveEntries(manifest, srcDir, logger)
	if err != nil {
		return err
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tmpPath)
	}()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("init compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	var checksums strings.Builder
	for _, name := range included {
		if err := ctx.Err(); err != nil {
			return err
		}

		sum, size, err := addFile(tw, filepath.Join(srcDir, name), name)
		if err != nil {
			return fmt.Errorf("package %s: %w", name, err)
		}
		fmt.Fprintf(&checksums, "%x  %d  %s\n", sum, size, name)
	}

	manifestBytes := []byte(checksums.String())
	if err := tw.WriteHeader(&tar.Header{
		Name: "checksums.txt",
		Mode: 0644,
		Size: int64(len(manifestBytes)),
	}); err != nil {
		return fmt.Errorf("write checksum header: %w", err)
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return fmt.Errorf("write checksums: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("publish archive: %w", err)
	}

	logger.Info().
		Int("files", len(included)).
		Str("archive", filepath.Base(destPath)).
		Msg("Archive packaged")
	return nil
}

// resolveEntries checks each manifest entry against the source directory.
// Missing required entries fail; missing optional entries log a warning and
// are skipped.
func resolveEntries(manifest *Manifest, srcDir string, logger arbor.ILogger) ([]string, error) {
	var included []string
	for _, entry := range manifest.Entries {
		path := filepath.Join(srcDir, entry.Name)
		if _, err := os.Stat(path); err != nil {
			if entry.Required {
				return nil, fmt.Errorf("required output missing: %s", entry.Name)
			}
			logger.Warn().Str("file", entry.Name).Msg("Optional output missing - excluded from archive")
			continue
		}
		included = append(included, entry.Name)
	}

	if len(included) == 0 {
		return nil, fmt.Errorf("no build outputs to package")
	}

	sort.Strings(included)
	return included, nil
}

func addFile(tw *tar.Writer, path, name string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}); err != nil {
		return nil, 0, err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tw, h), f); err != nil {
		return nil, 0, err
	}

	return h.Sum(nil), info.Size(), nil
}
