package dataset

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry is one regular file read from a gzip'd tar archive.
type Entry struct {
	Name string
	Data []byte
}

// ErrUnsafePath is returned for archive members that would escape the
// extraction root.
var ErrUnsafePath = errors.New("dataset: archive entry escapes extraction root")

// StreamArchive streams the regular files of the .tar.gz at path.
func StreamArchive(ctx context.Context, path string) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open archive: %w", err)
			return
		}
		defer f.Close()

		gz, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			errCh <- fmt.Errorf("open gzip: %w", err)
			return
		}
		defer gz.Close()

		tr := tar.NewReader(gz)
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, tar.ErrInsecurePath) {
				errCh <- fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar: %w", err)
				return
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			name := filepath.Clean(hdr.Name)
			if !filepath.IsLocal(name) {
				errCh <- fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
				return
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				errCh <- fmt.Errorf("read %s: %w", name, err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Entry{Name: name, Data: data}:
			}
		}
	}()

	return out, errCh
}

// ExtractArchive writes every regular file of the archive at path under root
// and returns the extracted relative names.
func ExtractArchive(ctx context.Context, path, root string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries, errs := StreamArchive(ctx, path)
	var names []string
	for entry := range entries {
		dst := filepath.Join(root, entry.Name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cancel()
			drain(entries)
			return nil, fmt.Errorf("mkdir: %w", err)
		}
		if err := os.WriteFile(dst, entry.Data, 0o644); err != nil {
			cancel()
			drain(entries)
			return nil, fmt.Errorf("write %s: %w", entry.Name, err)
		}
		names = append(names, entry.Name)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return names, nil
}

func drain(entries <-chan Entry) {
	for range entries {
	}
}
