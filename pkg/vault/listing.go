package vault

import (
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PhotonicGluon/Excalibur/pkg/exef"
)

// Item is one entry in a directory listing. Type is "file" or "directory".
// Nested directories are listed without their own items.
type Item struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Fullpath string  `json:"fullpath"`
	Size     int64   `json:"size,omitempty"`
	Mimetype *string `json:"mimetype,omitempty"`
	Items    []Item  `json:"items,omitempty"`
}

// List returns the contents of the directory at dir. Files that do not
// carry the .exef suffix are skipped. File sizes report the plaintext
// length unless withHeader is set, in which case the full container size
// is reported.
func (v *Vault) List(username, dir string, withHeader bool) (*Item, error) {
	full, err := v.resolve(username, dir)
	if err != nil {
		return nil, err
	}
	userRoot := filepath.Join(v.root, username)

	entries, err := listEntries(full, userRoot, withHeader)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(userRoot, full)
	if err != nil {
		return nil, ErrInvalidPath
	}
	return &Item{
		Type:     "directory",
		Name:     filepath.Base(full),
		Fullpath: filepath.ToSlash(rel),
		Items:    entries,
	}, nil
}

func listEntries(dir, userRoot string, withHeader bool) ([]Item, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, ErrNotFound
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ErrNotFound
	}

	items := make([]Item, 0, len(dirEntries))
	for _, entry := range dirEntries {
		rel, err := filepath.Rel(userRoot, filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		fullpath := filepath.ToSlash(rel)

		if entry.IsDir() {
			items = append(items, Item{
				Type:     "directory",
				Name:     entry.Name(),
				Fullpath: fullpath,
			})
			continue
		}
		if !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		size := info.Size()
		if !withHeader {
			size -= exef.AdditionalSize
		}
		items = append(items, Item{
			Type:     "file",
			Name:     entry.Name(),
			Fullpath: fullpath,
			Size:     size,
			Mimetype: guessMimetype(fullpath),
		})
	}
	return items, nil
}

// guessMimetype infers the MIME type of the stored plaintext from the name
// under the .exef suffix. Unknown types stay nil.
func guessMimetype(fullpath string) *string {
	ext := path.Ext(strings.TrimSuffix(fullpath, FileSuffix))
	if ext == "" {
		return nil
	}
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return nil
	}
	return &mt
}
