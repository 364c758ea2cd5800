package yoloprep

// Dataset config for YOLO trainers.

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DatasetConfig is the data.yaml read by YOLO trainers. Train and Val are relative to Path.
type DatasetConfig struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names,flow"`
}

// NewDatasetConfig describes the split layout created by SplitDataset below root.
func NewDatasetConfig(root string, classes ClassTable) DatasetConfig {
	return DatasetConfig{
		Path:  root,
		Train: filepath.ToSlash(filepath.Join("images", TrainDir)),
		Val:   filepath.ToSlash(filepath.Join("images", ValDir)),
		NC:    classes.Len(),
		Names: classes.Names(),
	}
}

// WriteDatasetConfig writes cfg as YAML to path, creating the parent directory if necessary.
func WriteDatasetConfig(fs afero.Fs, path string, cfg DatasetConfig) error {
	enc, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create directory for %q: %v", path, err)
	}
	if err := afero.WriteFile(fs, path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// ReadDatasetConfig reads a data.yaml file.
func ReadDatasetConfig(fs afero.Fs, path string) (DatasetConfig, error) {
	var cfg DatasetConfig
	enc, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse dataset config %q: %v", path, err)
	}
	return cfg, nil
}
