// Package vault manages the per-user encrypted file store on disk.
//
// Every user owns a directory under the vault root; all paths supplied by
// clients are resolved against that directory and rejected if they escape it.
// Stored files are opaque ExEF containers and must carry the .exef suffix.
package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxPathLength bounds the absolute on-disk path of any vault entry.
const MaxPathLength = 4096

// FileSuffix is the required extension for stored files.
const FileSuffix = ".exef"

var (
	ErrInvalidPath   = errors.New("vault: illegal or invalid path")
	ErrNotFound      = errors.New("vault: path not found")
	ErrNotDirectory  = errors.New("vault: not a directory")
	ErrNotFile       = errors.New("vault: not a file")
	ErrExists        = errors.New("vault: already exists")
	ErrPathTooLong   = errors.New("vault: path too long")
	ErrRootDirectory = errors.New("vault: operation not allowed on root directory")
	ErrNotEmpty      = errors.New("vault: directory is not empty")
	ErrBadSuffix     = errors.New("vault: file name must end with .exef")
	ErrInvalidName   = errors.New("vault: illegal or invalid name")
)

// Vault is a handle on the vault root directory.
type Vault struct {
	root string
}

// New opens a vault rooted at dir, creating it if needed.
func New(dir string) (*Vault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating vault root: %w", err)
	}
	return &Vault{root: abs}, nil
}

// Root returns the absolute vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// CreateUserRoot makes the per-user directory. Idempotent.
func (v *Vault) CreateUserRoot(username string) error {
	dir, err := v.resolve(username, ".")
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// resolve maps a client-supplied path into the user's directory, guarding
// against traversal. "." names the user root.
func (v *Vault) resolve(username, path string) (string, error) {
	if username == "" || strings.ContainsAny(username, `/\`) {
		return "", ErrInvalidPath
	}
	userRoot := filepath.Join(v.root, username)
	full := filepath.Clean(filepath.Join(userRoot, filepath.FromSlash(path)))
	if full != userRoot && !strings.HasPrefix(full, userRoot+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// userRootPath reports whether full is the user's own root directory.
func (v *Vault) userRootPath(username, full string) bool {
	return full == filepath.Join(v.root, username)
}

// Upload stores the contents of r as name inside the directory at dir.
// Existing files are only replaced when force is set.
func (v *Vault) Upload(username, dir, name string, force bool, r io.Reader) error {
	if !strings.HasSuffix(name, FileSuffix) {
		return ErrBadSuffix
	}
	dirPath, err := v.resolve(username, dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(dirPath)
	if err != nil || !info.IsDir() {
		return ErrNotFound
	}

	filePath := filepath.Join(dirPath, name)
	if filepath.Dir(filePath) != dirPath {
		return ErrInvalidPath
	}
	if len(filePath) > MaxPathLength {
		return ErrPathTooLong
	}
	if !force {
		if _, err := os.Stat(filePath); err == nil {
			return ErrExists
		}
	}

	// Write through a temp file so a failed upload never leaves a
	// truncated container behind.
	tmp, err := os.CreateTemp(dirPath, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing upload: %w", err)
	}
	return os.Rename(tmp.Name(), filePath)
}

// Mkdir creates a new directory called name inside the directory at dir.
func (v *Vault) Mkdir(username, dir, name string) error {
	dirPath, err := v.resolve(username, dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(dirPath)
	if err != nil || !info.IsDir() {
		return ErrNotFound
	}

	newPath := filepath.Clean(filepath.Join(dirPath, filepath.FromSlash(name)))
	if newPath == dirPath || !strings.HasPrefix(newPath, dirPath+string(filepath.Separator)) {
		return ErrInvalidName
	}
	if _, err := os.Stat(newPath); err == nil {
		return ErrExists
	}
	if len(newPath) > MaxPathLength {
		return ErrPathTooLong
	}
	return os.MkdirAll(newPath, 0o755)
}

// Open opens a stored file for reading.
func (v *Vault) Open(username, path string) (*os.File, os.FileInfo, error) {
	full, err := v.resolve(username, path)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	return f, info, nil
}

// Delete removes a file, or a directory when asDir is set. Non-empty
// directories additionally need force. Reports whether a directory was
// removed.
func (v *Vault) Delete(username, path string, asDir, force bool) (bool, error) {
	full, err := v.resolve(username, path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return false, ErrNotFound
	}
	if v.userRootPath(username, full) {
		return false, ErrRootDirectory
	}

	if info.IsDir() {
		if !asDir {
			return false, ErrNotDirectory
		}
		if !force {
			empty, err := isEmptyDir(full)
			if err != nil {
				return false, err
			}
			if !empty {
				return false, ErrNotEmpty
			}
		}
		return true, os.RemoveAll(full)
	}
	return false, os.Remove(full)
}

// Rename gives the entry at path a new name within its parent directory.
func (v *Vault) Rename(username, path, newName string) error {
	full, err := v.resolve(username, path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		return ErrNotFound
	}
	if v.userRootPath(username, full) {
		return ErrRootDirectory
	}

	parent := filepath.Dir(full)
	newPath := filepath.Clean(filepath.Join(parent, filepath.FromSlash(newName)))
	if filepath.Dir(newPath) != parent || newPath == parent {
		return ErrInvalidPath
	}
	if len(newPath) > MaxPathLength {
		return ErrPathTooLong
	}
	if _, err := os.Stat(newPath); err == nil {
		return ErrExists
	}
	return os.Rename(full, newPath)
}

// Stat checks the entry at path; reports whether it is a file.
func (v *Vault) Stat(username, path string) (isFile bool, err error) {
	full, err := v.resolve(username, path)
	if err != nil {
		return false, err
	}
	if len(full) > MaxPathLength {
		return false, ErrPathTooLong
	}
	info, err := os.Stat(full)
	if err != nil {
		return false, ErrNotFound
	}
	return !info.IsDir(), nil
}

// StatDir checks the directory at path; reports whether it is empty.
func (v *Vault) StatDir(username, path string) (empty bool, err error) {
	full, err := v.resolve(username, path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		return false, ErrNotFound
	}
	return isEmptyDir(full)
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("reading directory: %w", err)
	}
	return len(entries) == 0, nil
}
