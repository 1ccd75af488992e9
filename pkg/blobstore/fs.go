package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sys/unix"

	"chatsync/pkg/logger"
)

const stagingDir = ".staging"

type Options struct {
	// PublicURL prefixes download URLs, e.g. "http://localhost:8080".
	PublicURL string
	// MaxSize caps a single blob; 0 disables the cap.
	MaxSize int64
	// MinFree refuses uploads when the volume has less free space.
	MinFree uint64
}

// FS stores blobs under a root directory. Uploads are written to a staging
// file first and renamed into place once complete, so readers never see a
// partial blob.
type FS struct {
	root string
	opts Options

	// freeSpace is swapped in tests
	freeSpace func(dir string) (uint64, error)
}

var _ Store = (*FS)(nil)

func NewFS(root string, opts Options) (*FS, error) {
	if err := os.MkdirAll(filepath.Join(root, stagingDir), 0o700); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &FS{root: root, opts: opts, freeSpace: statfsFree}, nil
}

func (s *FS) Root() string { return s.root }

func statfsFree(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// clean validates a slash separated blob path and maps it under root.
func (s *FS) clean(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, ".") || strings.ContainsAny(seg, "\\\x00") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

func (s *FS) Put(ctx context.Context, p string, r io.Reader) (n int64, err error) {
	started := time.Now()
	defer func() { observePut(started, n, err) }()

	dst, err := s.clean(p)
	if err != nil {
		return 0, err
	}
	if s.opts.MinFree > 0 {
		free, ferr := s.freeSpace(s.root)
		if ferr != nil {
			logger.Warn("blob_statfs_failed", "root", s.root, "error", ferr)
		} else if free < s.opts.MinFree {
			logger.Warn("blob_disk_low", "free", humanize.IBytes(free), "min", humanize.IBytes(s.opts.MinFree))
			return 0, ErrDiskFull
		}
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, stagingDir), "upload-*")
	if err != nil {
		return 0, fmt.Errorf("stage %s: %w", p, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	src := r
	if s.opts.MaxSize > 0 {
		src = io.LimitReader(r, s.opts.MaxSize+1)
	}
	n, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", p, err)
	}
	if s.opts.MaxSize > 0 && n > s.opts.MaxSize {
		return 0, fmt.Errorf("%w: limit %s", ErrTooLarge, humanize.IBytes(uint64(s.opts.MaxSize)))
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("commit %s: %w", p, err)
	}
	committed = true
	logger.Debug("blob_stored", "path", p, "size", humanize.IBytes(uint64(n)))
	return n, nil
}

// URL fails with ErrNotFound until the blob exists.
func (s *FS) URL(ctx context.Context, p string) (string, error) {
	if _, err := s.Stat(p); err != nil {
		return "", err
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.opts.PublicURL + "/v1/blobs/" + strings.Join(segs, "/"), nil
}

func (s *FS) Stat(p string) (Info, error) {
	full, err := s.clean(p)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return Info{}, err
	}
	if fi.IsDir() {
		return Info{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	info := Info{Path: strings.Trim(p, "/"), Size: fi.Size(), ModTime: fi.ModTime(), ContentType: "application/octet-stream"}
	if mt, err := mimetype.DetectFile(full); err == nil {
		info.ContentType = mt.String()
	}
	return info, nil
}

func (s *FS) Open(p string) (io.ReadCloser, Info, error) {
	info, err := s.Stat(p)
	if err != nil {
		return nil, Info{}, err
	}
	full, _ := s.clean(p)
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, Info{}, err
	}
	return f, info, nil
}

// PurgeStaging removes staged uploads last modified before cutoff, which
// are left behind by interrupted writes. With dryRun set it only counts
// them.
func (s *FS) PurgeStaging(cutoff time.Time, dryRun bool) (int, error) {
	dir := filepath.Join(s.root, stagingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		purged++
		if dryRun {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("blob_purge_failed", "name", e.Name(), "error", err)
			purged--
		}
	}
	return purged, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
