package filestore

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

// Materialize downloads and/or unpacks the entry's file.
//
// A set source URL is fetched to the computed path, overwriting any prior
// download. OptGzipDecompress then decompresses into a sibling path with the
// .gz suffix stripped, removes the compressed file, and switches the entry's
// logical path to the decompressed name; a pre-existing decompressed file is
// reused without repeating the work. OptTar extracts the archive next to
// itself. Download and extraction are not guarded and repeat when called again.
func (s *Store) Materialize(e *Entry) error {
	if e.URL != "" {
		if err := s.fetch(e.URL, e.path); err != nil {
			return err
		}
	}

	switch e.Option {
	case OptGzipDecompress:
		if err := e.decompress(); err != nil {
			return err
		}
	case OptTar:
		if err := extractTar(e.path); err != nil {
			return err
		}
	}
	return nil
}

// fetch downloads url to path with bounded exponential-backoff retry.
// Exhausting the retry budget is fatal to the caller.
func (s *Store) fetch(url, path string) error {
	attempt := 0
	op := func() error {
		attempt++
		log.Debug(log.CatFetch, "Downloading", "url", url, "attempt", attempt)
		return s.downloadOnce(url, path)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries)
	if err := backoff.Retry(op, policy); err != nil {
		log.ErrorErr(log.CatFetch, "Download failed, retry budget exhausted", err,
			"url", url, "attempts", attempt)
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	return nil
}

func (s *Store) downloadOnce(url, path string) error {
	resp, err := s.client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.Create(path) //nolint:gosec // G304: path computed from configured roots
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// decompress unpacks a gzip file into the .gz-stripped sibling path, then
// deletes the compressed original and adopts the decompressed name.
func (e *Entry) decompress() error {
	target := stripGzSuffix(e.path)

	// A decompressed file already on disk means a previous (possibly
	// interrupted) run finished this step. The entry's path may already be
	// the decompressed name when this is the second call in one run.
	if _, err := os.Stat(target); err == nil {
		e.path = target
		return nil
	}
	if target == e.path {
		return fmt.Errorf("resource %s has no recognized gzip suffix", e.path)
	}

	in, err := os.Open(e.path) //nolint:gosec // G304: path computed from configured roots
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.path, err)
	}
	defer func() { _ = in.Close() }()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("gzip reader for %s: %w", e.path, err)
	}

	out, err := os.Create(target) //nolint:gosec // G304: sibling of computed path
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(out, zr); err != nil { //nolint:gosec // G110: trusted reference data
		_ = out.Close()
		return fmt.Errorf("decompressing %s: %w", e.path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Remove(e.path); err != nil {
		return fmt.Errorf("removing %s: %w", e.path, err)
	}
	e.path = target
	log.Debug(log.CatStore, "Decompressed resource", "path", target)
	return nil
}

// extractTar unpacks a tar archive (optionally gzip-compressed) into the
// directory containing it. Member paths escaping that directory are rejected.
func extractTar(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path computed from configured roots
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".tgz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip reader for %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	destDir := filepath.Dir(path)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", path, err)
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive member %q escapes extraction root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
			}
			out, err := os.Create(target) //nolint:gosec // G304: contained by prefix check above
			if err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // G110: trusted reference data
				_ = out.Close()
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// stripGzSuffix removes a trailing .gz, returning the input unchanged when
// the suffix is absent.
func stripGzSuffix(path string) string {
	return strings.TrimSuffix(path, ".gz")
}
