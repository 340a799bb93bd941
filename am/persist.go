package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/quotesearch/errors"
)

const backupGenerations = 3

// rotateBackups shifts path.back1..2 down one slot and copies path into
// .back1. The oldest generation is dropped. A missing path is not an error.
func rotateBackups(path string) error {
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	backup := func(n int) string { return fmt.Sprintf("%s.back%d", path, n) }

	if err := os.Remove(backup(backupGenerations)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete %s", backup(backupGenerations))
	}
	for n := backupGenerations - 1; n >= 1; n-- {
		if err := os.Rename(backup(n), backup(n+1)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to rotate %s", backup(n))
		}
	}
	return errors.Wrap(os.WriteFile(backup(1), current, DefaultFilePermissions), "failed to write backup")
}

// setPath stores value under a dotted key, creating intermediate tables
func setPath(doc map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return errors.Newf("invalid config key %q", key)
		}
	}
	table := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := table[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			table[p] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value
	return nil
}

// UpdateSetting writes one dotted key (e.g. "jobs.max_concurrent_workers")
// into the TOML file at path, creating it when absent. The previous content
// is kept in .back1..3 and a registered watcher skips the resulting event.
func UpdateSetting(path, key string, value interface{}) error {
	doc := map[string]interface{}{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	case !os.IsNotExist(err):
		return errors.Wrapf(err, "failed to read %s", path)
	}

	if err := setPath(doc, key, value); err != nil {
		return err
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := rotateBackups(path); err != nil {
		return err
	}
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}
	return errors.Wrapf(os.WriteFile(path, out, DefaultFilePermissions), "failed to write %s", path)
}
