// Package staging holds chain snapshots outside the served data directory
// until a download batch is done. Snapshots for a date are written under
// {base}/.staging/{date} and Commit moves them into {base}/{date}.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".chain-"

// Area is the staging directory for one data directory.
type Area struct {
	base string
	root string
}

func New(base string) *Area {
	return &Area{
		base: base,
		root: filepath.Join(base, ".staging"),
	}
}

// Base is the served data directory that Commit moves snapshots into.
func (a *Area) Base() string {
	return a.base
}

func (a *Area) Root() string {
	return a.root
}

func (a *Area) Dir(date string) string {
	return filepath.Join(a.root, date)
}

func (a *Area) Prepare(date string) error {
	return os.MkdirAll(a.Dir(date), 0750)
}

// WriteChain encodes a snapshot into a temp file next to path and renames it
// over path once encode succeeds. It returns the bytes written.
func (a *Area) WriteChain(path string, encode func(io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("creating chain directory: %w", err)
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("creating temp chain: %w", err)
	}
	tmp := f.Name()

	cw := &countingWriter{w: f}
	err = encode(cw)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("staging chain %s: %w", path, err)
	}

	return cw.n, nil
}

// Commit moves every staged snapshot for date into the served directory and
// returns how many were moved. Leftover temp files are not committed.
func (a *Area) Commit(date string) (int, error) {
	src := a.Dir(date)
	dst := filepath.Join(a.base, date)

	moved := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return err
		}
		if err := os.Rename(path, target); err != nil {
			return err
		}
		moved++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) && moved == 0 {
		return 0, nil
	}
	return moved, err
}

// Discard removes whatever is left in the staging directory for date.
func (a *Area) Discard(date string) error {
	return os.RemoveAll(a.Dir(date))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
