package release

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/getpup/glpi-bootstrap"
)

// Extract unpacks the gzip-compressed tarball read from r into dir, dropping
// the first strip path components of every entry. It returns the number of
// regular files written.
//
// Entries that resolve outside dir, absolute symlinks and symlinks that
// point outside dir fail with bootstrap.ErrArchiveInvalid. Paths are checked
// against the tree on disk, so a chain of symlinks cannot be used to leave
// dir either. Device nodes and other special files are skipped.
func Extract(r io.Reader, dir string, strip int) (int, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", bootstrap.ErrArchiveInvalid, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	type link struct{ rel, target string }
	var links []link

	files := 0
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("%w: %v", bootstrap.ErrArchiveInvalid, err)
		}

		rel, ok := stripComponents(hdr.Name, strip)
		if !ok {
			continue
		}
		if !filepath.IsLocal(rel) {
			return files, fmt.Errorf("%w: entry %q escapes the destination", bootstrap.ErrArchiveInvalid, hdr.Name)
		}
		target := filepath.Join(root, rel)

		check := filepath.Dir(target)
		if hdr.Typeflag == tar.TypeDir {
			check = target
		}
		if err := staysInside(root, check); err != nil {
			return files, fmt.Errorf("%w: entry %q: %v", bootstrap.ErrArchiveInvalid, hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return files, fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if fi, err := os.Lstat(target); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
				if err := os.Remove(target); err != nil {
					return files, fmt.Errorf("failed to replace symlink %s: %w", target, err)
				}
			}
			if err := writeFile(target, fileMode(hdr), tr); err != nil {
				var rerr readError
				if errors.As(err, &rerr) {
					return files, fmt.Errorf("%w: %s: %v", bootstrap.ErrArchiveInvalid, hdr.Name, rerr.err)
				}
				return files, fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
			files++
		case tar.TypeSymlink:
			if !symlinkStaysInside(rel, hdr.Linkname) {
				return files, fmt.Errorf("%w: symlink %q points outside the destination", bootstrap.ErrArchiveInvalid, hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return files, fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return files, fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
			links = append(links, link{rel: rel, target: hdr.Linkname})
		default:
			// pax headers are consumed by tar.Reader; anything else is not
			// part of a PHP application tree.
		}
	}

	// Links are checked again once the tree is complete: a link may only
	// become an escape through a symlink created after it.
	for _, l := range links {
		if linkEscapes(root, l.rel, l.target) {
			return files, fmt.Errorf("%w: symlink %q points outside the destination through another symlink",
				bootstrap.ErrArchiveInvalid, filepath.ToSlash(l.rel))
		}
	}

	if files == 0 {
		return 0, fmt.Errorf("%w: archive contains no files", bootstrap.ErrArchiveInvalid)
	}
	return files, nil
}

// staysInside resolves the existing part of p on disk and fails when it is
// not under root. Missing trailing elements are created later by MkdirAll,
// which refuses to create through a dangling symlink.
func staysInside(root, p string) error {
	existing := p
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			rel, err := filepath.Rel(root, resolved)
			if err != nil || (rel != "." && !filepath.IsLocal(rel)) {
				return fmt.Errorf("%s resolves outside the destination", p)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if _, lerr := os.Lstat(existing); lerr == nil {
			return fmt.Errorf("%s passes through a dangling symlink", p)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return err
		}
		existing = parent
	}
}

// linkEscapes reports whether the symlink at rel pointing at target walks
// through another symlink on its way, either in its own parent directories
// or before the last element of target. Each link is checked lexically when
// created, so forbidding links-through-links keeps every link inside root.
func linkEscapes(root, rel, target string) bool {
	cur := filepath.Dir(rel)
	if cur != "." && hasSymlink(root, cur) {
		return true
	}
	parts := strings.Split(target, "/")
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if cur == "." {
				return true
			}
			cur = filepath.Dir(cur)
			continue
		}
		cur = filepath.Join(cur, part)
		if i < len(parts)-1 && isSymlink(filepath.Join(root, cur)) {
			return true
		}
	}
	return false
}

func hasSymlink(root, rel string) bool {
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		if isSymlink(cur) {
			return true
		}
	}
	return false
}

func isSymlink(p string) bool {
	fi, err := os.Lstat(p)
	return err == nil && fi.Mode()&fs.ModeSymlink != 0
}

// stripComponents removes the first n slash-separated elements of name. The
// second result is false when nothing remains.
func stripComponents(name string, n int) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(name, "./"), "/")
	if len(parts) <= n {
		return "", false
	}
	rel := path.Clean(strings.Join(parts[n:], "/"))
	if rel == "." || rel == "" {
		return "", false
	}
	return filepath.FromSlash(rel), true
}

func symlinkStaysInside(rel, link string) bool {
	if link == "" || path.IsAbs(link) || filepath.IsAbs(link) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(rel), filepath.FromSlash(link))
	return filepath.IsLocal(resolved)
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode) & os.ModePerm
	if mode == 0 {
		return 0o755
	}
	return mode | 0o700
}

func fileMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode) & os.ModePerm
	if mode == 0 {
		return 0o644
	}
	return mode | 0o600
}

func writeFile(name string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, archiveSource{r}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readError marks a failure reading the archive, as opposed to writing the
// extracted file.
type readError struct{ err error }

func (e readError) Error() string { return e.err.Error() }

type archiveSource struct{ r io.Reader }

func (s archiveSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = readError{err}
	}
	return n, err
}
