package yoloprep

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteDatasetConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := NewDatasetConfig("/data", DefaultClassTable())

	if err := WriteDatasetConfig(fs, "/data/config/data.yaml", cfg); err != nil {
		t.Fatalf("WriteDatasetConfig failed: %v", err)
	}

	got := readFile(t, fs, "/data/config/data.yaml")
	for _, line := range []string{
		"path: /data",
		"train: images/train",
		"val: images/val",
		"nc: 2",
		"names: [helmet, head]",
	} {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("data.yaml is missing %q:\n%s", line, got)
		}
	}

	read, err := ReadDatasetConfig(fs, "/data/config/data.yaml")
	if err != nil {
		t.Fatalf("ReadDatasetConfig failed: %v", err)
	}
	if read.NC != 2 || strings.Join(read.Names, ",") != "helmet,head" || read.Train != "images/train" {
		t.Errorf("read back %+v", read)
	}
}

func TestReadDatasetConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := ReadDatasetConfig(fs, "/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	writeFiles(t, fs, map[string]string{"/bad.yaml": "names: [unterminated"})
	if _, err := ReadDatasetConfig(fs, "/bad.yaml"); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
