// Package zipfiles packages a batch of tagged files into one archive for
// delivery.
package zipfiles

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"go.senan.xyz/natcmp"
)

// Create writes a zip archive at dest containing each input file under its
// base name, in natural order.
func Create(dest string, paths []string) (err error) {
	paths = slices.Clone(paths)
	slices.SortFunc(paths, func(a, b string) int {
		return natcmp.Compare(filepath.Base(a), filepath.Base(b))
	})

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	for _, path := range paths {
		if err := addFile(zw, path); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalise archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
