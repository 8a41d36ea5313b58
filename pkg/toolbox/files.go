package toolbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/freitascorp/deskclaw/pkg/config"
)

const timeLayout = "2006-01-02 15:04:05"

// Entry is one row of a directory listing.
type Entry struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// FileInfo describes a single path.
type FileInfo struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
	Permissions string `json:"permissions"`
	Absolute    string `json:"absolute_path"`
}

func kind(fi os.FileInfo) string {
	switch {
	case fi.IsDir():
		return "directory"
	case fi.Mode()&os.ModeSymlink != 0:
		return "symlink"
	default:
		return "file"
	}
}

func clean(p string) string { return filepath.Clean(config.ExpandPath(p)) }

// ReadFile returns the file's text in the requested encoding (utf-8 or gbk).
func ReadFile(path, encoding string) (string, error) {
	data, err := os.ReadFile(clean(path))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "")) {
	case "", "utf8":
		return string(data), nil
	case "gbk", "gb2312":
		out, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s as gbk: %w", path, err)
		}
		return string(out), nil
	case "gb18030":
		out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s as gb18030: %w", path, err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// ListDirectory lists path sorted by name. Dot files are skipped unless showHidden.
func ListDirectory(path string, showHidden bool) ([]Entry, error) {
	dir := clean(path)
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if !showHidden && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		e := Entry{Name: de.Name(), Type: kind(fi), Modified: fi.ModTime().Format(timeLayout)}
		if !fi.IsDir() {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func CreateDirectory(path string) error {
	return os.MkdirAll(clean(path), 0o755)
}

// DeleteFile removes a file, or a directory when recursive is set.
func DeleteFile(path string, recursive bool) error {
	p := clean(path)
	fi, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		if !recursive {
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("%s is a non-empty directory, set recursive=true to delete it", path)
			}
			return nil
		}
		return os.RemoveAll(p)
	}
	return os.Remove(p)
}

// WriteFile writes content with mode "w" (truncate) or "a" (append).
func WriteFile(path, content, mode string) (int, error) {
	flag := os.O_CREATE | os.O_WRONLY
	switch mode {
	case "", "w":
		flag |= os.O_TRUNC
	case "a":
		flag |= os.O_APPEND
	default:
		return 0, fmt.Errorf("mode must be w or a, got %q", mode)
	}
	f, err := os.OpenFile(clean(path), flag, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteString(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Exists reports whether path exists and what it is.
func Exists(path string) (bool, string) {
	fi, err := os.Stat(clean(path))
	if err != nil {
		return false, ""
	}
	return true, kind(fi)
}

func Stat(path string) (FileInfo, error) {
	p := clean(path)
	fi, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, err
	}
	abs, _ := filepath.Abs(p)
	return FileInfo{
		Path:        path,
		Name:        fi.Name(),
		Type:        kind(fi),
		Size:        fi.Size(),
		Modified:    fi.ModTime().Format(timeLayout),
		Permissions: fi.Mode().Perm().String(),
		Absolute:    abs,
	}, nil
}

// CopyFile copies a file, or a directory tree, to dst.
func CopyFile(src, dst string) error {
	s, d := clean(src), clean(dst)
	fi, err := os.Stat(s)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return os.CopyFS(d, os.DirFS(s))
	}
	if dfi, err := os.Stat(d); err == nil && dfi.IsDir() {
		d = filepath.Join(d, filepath.Base(s))
	}
	return copyOne(s, d, fi.Mode().Perm(), fi.ModTime())
}

func copyOne(src, dst string, perm os.FileMode, mtime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, mtime, mtime)
}

// MoveFile renames src to dst, copying across filesystems when rename cannot.
func MoveFile(src, dst string) error {
	s, d := clean(src), clean(dst)
	if dfi, err := os.Stat(d); err == nil && dfi.IsDir() {
		d = filepath.Join(d, filepath.Base(s))
	}
	err := os.Rename(s, d)
	var le *os.LinkError
	if err == nil || !errors.As(err, &le) {
		return err
	}
	if _, serr := os.Stat(s); serr != nil {
		return err
	}
	if cerr := CopyFile(s, d); cerr != nil {
		return fmt.Errorf("move %s: %w", src, cerr)
	}
	return os.RemoveAll(s)
}
