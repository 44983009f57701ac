package packager

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/rocketdoo/rkd/internal/module"
)

// CreateArchive stages mods and writes them as a gzip-compressed tarball
// with one top-level directory per module. An empty outputPath writes to the
// system temp directory. It returns the archive path and its size in bytes.
func (p *Packager) CreateArchive(mods []*module.Module, outputPath string) (string, int64, error) {
	staging, err := p.PrepareModules(mods)
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(staging)

	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(),
			fmt.Sprintf("rkd_modules_%s.tar.gz", p.now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("creating archive directory: %w", err)
	}

	if err := writeTarGz(staging, outputPath); err != nil {
		_ = os.Remove(outputPath)
		return "", 0, err
	}

	fi, err := os.Stat(outputPath)
	if err != nil {
		return "", 0, err
	}
	p.logger.Info("archive created", "path", outputPath, "bytes", fi.Size())
	return outputPath, fi.Size(), nil
}

func writeTarGz(srcDir, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	return f.Close()
}

// ExtractArchive unpacks an archive produced by CreateArchive into dest.
// Entries escaping dest are rejected, as are symlinks that are absolute or
// point outside dest, and entries that would be written through a symlink.
func ExtractArchive(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target := filepath.Join(absDest, filepath.FromSlash(hdr.Name))
		if !within(absDest, target) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		if err := rejectSymlinkedPath(absDest, target); err != nil {
			return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) ||
				!within(absDest, filepath.Join(filepath.Dir(target), filepath.FromSlash(hdr.Linkname))) {
				return fmt.Errorf("archive entry %q links outside destination: %s", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// rejectSymlinkedPath fails when target or any directory between root and
// target already exists as a symlink.
func rejectSymlinkedPath(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return err
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("path %s is a symlink", cur)
		}
	}
	return nil
}
