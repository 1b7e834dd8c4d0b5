// Package release packages a vector store and publishes it as a GitHub
// release asset.
package release

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// sqliteSidecars are the files SQLite keeps next to a database in WAL mode.
var sqliteSidecars = []string{"-wal", "-shm"}

// Archive writes src to outPath as a .tar.gz and returns the archive size in
// bytes. A directory is stored under its base name. A file is stored at the
// archive root together with any SQLite sidecar files next to it.
func Archive(src, outPath string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("vector store not found: %w", err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is neither a file nor a directory", src)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	if info.IsDir() {
		err = addDir(tw, filepath.Clean(src))
	} else {
		err = addStoreFile(tw, src)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to archive %s: %w", src, err)
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}

	stat, err := out.Stat()
	if err != nil {
		return 0, err
	}

	return stat.Size(), nil
}

func addDir(tw *tar.Writer, root string) error {
	base := filepath.Base(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		return addEntry(tw, path, info, filepath.ToSlash(filepath.Join(base, rel)))
	})
}

func addStoreFile(tw *tar.Writer, path string) error {
	for _, suffix := range append([]string{""}, sqliteSidecars...) {
		info, err := os.Stat(path + suffix)
		if suffix != "" && os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}

		if err := addEntry(tw, path+suffix, info, filepath.Base(path)+suffix); err != nil {
			return err
		}
	}

	return nil
}

func addEntry(tw *tar.Writer, path string, info fs.FileInfo, name string) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
