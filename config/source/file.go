package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skekre98/contentagent/config"
)

const baseName = "application"

var extensions = []string{".yaml", ".yml", ".toml"}

// FileSource loads application.yaml (or .yml, or .toml) from BasePath and,
// when Profile is set, deep-merges application.<profile>.<ext> on top of
// it. A missing overlay is ignored. The base and overlay may use different
// formats.
//
//	configs/
//	  application.yaml
//	  application.dev.toml
type FileSource struct {
	BasePath string
	Profile  string
}

func (f *FileSource) Name() string { return "file" }

// Load returns os.ErrNotExist if the base file is missing.
func (f *FileSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	baseFile := findConfigFile(f.BasePath, baseName)
	if baseFile == "" {
		return nil, fmt.Errorf("%s in %s: %w", baseName, f.BasePath, os.ErrNotExist)
	}
	data := map[string]any{}
	if err := readConfig(baseFile, data); err != nil {
		return nil, err
	}
	if f.Profile == "" {
		return data, nil
	}
	profileFile := findConfigFile(f.BasePath, baseName+"."+f.Profile)
	if profileFile == "" {
		return data, nil
	}
	overlay := map[string]any{}
	if err := readConfig(profileFile, overlay); err != nil {
		return nil, err
	}
	merged := map[string]any{}
	config.Merge(merged, data)
	config.Merge(merged, overlay)
	return merged, nil
}

func findConfigFile(dir, basename string) string {
	for _, ext := range extensions {
		path := filepath.Join(dir, basename+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Watch signals ch when an application config file under BasePath is
// written, created or renamed. Watcher errors are forwarded with Err set.
func (f *FileSource) Watch(ctx context.Context, ch chan<- config.Event) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file watch: %w", err)
	}
	if err := w.Add(f.BasePath); err != nil {
		_ = w.Close()
		return fmt.Errorf("file watch %s: %w", f.BasePath, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isConfigFile(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case ch <- config.Event{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case ch <- config.Event{Err: fmt.Errorf("file watch %s: %w", f.BasePath, err)}:
				default:
				}
			}
		}
	}()
	return nil
}

func isConfigFile(path string) bool {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, baseName) {
		return false
	}
	ext := filepath.Ext(name)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func readConfig(path string, out map[string]any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if filepath.Ext(path) == ".toml" {
		err = toml.Unmarshal(b, &out)
	} else {
		err = yaml.Unmarshal(b, &out)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
