package beans

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the name of the beans project settings file.
const ProjectFile = ".beans.yml"

// ErrNoProject is returned when no ProjectFile exists in any parent directory.
var ErrNoProject = errors.New("no " + ProjectFile + " found")

// ProjectConfig is the part of .beans.yml this tool reads.
type ProjectConfig struct {
	Beans struct {
		Path     string `yaml:"path"`
		Prefix   string `yaml:"prefix"`
		IDLength int    `yaml:"id_length"`
	} `yaml:"beans"`

	// Root is the directory holding the settings file.
	Root string `yaml:"-"`
}

// DataDir is the absolute directory holding bean files.
func (p *ProjectConfig) DataDir() string {
	dir := p.Beans.Path
	if dir == "" {
		dir = ".beans"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.Root, dir)
}

// FindProjectConfig walks up from start looking for ProjectFile.
func FindProjectConfig(start string) (*ProjectConfig, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		path := filepath.Join(dir, ProjectFile)
		data, err := os.ReadFile(path)
		if err == nil {
			var cfg ProjectConfig
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.Root = dir
			return &cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoProject
		}
		dir = parent
	}
}
