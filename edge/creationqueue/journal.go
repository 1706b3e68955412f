package creationqueue

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileJournal keeps the pending queue in a JSON file next to the device's
// data. Writes go through a temp file + rename so a crash never leaves a
// half-written journal.
type FileJournal struct {
	Path string
}

func (j *FileJournal) Save(items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	dir := filepath.Dir(j.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".queue-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, j.Path)
}

func (j *FileJournal) Load() ([]Item, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
