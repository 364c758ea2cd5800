package yoloprep

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
)

// createCorpus writes n images named img<i>.jpg to /data/images with labels in /data/labels.
func createCorpus(t *testing.T, fs afero.Fs, n int) {
	t.Helper()
	files := make(map[string]string, 2*n)
	for i := 0; i < n; i++ {
		files[fmt.Sprintf("/data/images/img%03d.jpg", i)] = fmt.Sprintf("image %d", i)
		files[fmt.Sprintf("/data/labels/img%03d.txt", i)] = fmt.Sprintf("0 0.5 0.5 0.%d 0.1\n", i%10)
	}
	writeFiles(t, fs, files)
}

// listNames returns the sorted names of the files directly in dir.
func listNames(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatalf("cannot list %q: %v", dir, err)
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names
}

func stems(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = stem(n)
	}
	return out
}

func TestSplitDatasetSizes(t *testing.T) {
	tests := []struct {
		n     int
		ratio float64
	}{
		{1, 0.8}, {2, 0.5}, {3, 0.8}, {10, 0.7}, {10, 0.8}, {17, 0.33}, {100, 0.9}, {5, 0.01},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d images ratio %v", tt.n, tt.ratio), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			createCorpus(t, fs, tt.n)

			result, err := SplitDataset(fs, "/data/images", "/data/labels",
				SplitOptions{TrainRatio: tt.ratio, Rand: rand.New(rand.NewSource(int64(tt.n)))})
			if err != nil {
				t.Fatalf("SplitDataset failed: %v", err)
			}

			wantTrain := splitIndex(tt.n, tt.ratio)
			trainImages := listNames(t, fs, "/data/images/train")
			valImages := listNames(t, fs, "/data/images/val")
			if len(trainImages) != wantTrain || len(result.Train) != wantTrain {
				t.Errorf("train size = %d (result %d), want %d",
					len(trainImages), len(result.Train), wantTrain)
			}
			if len(valImages) != tt.n-wantTrain || len(result.Val) != tt.n-wantTrain {
				t.Errorf("val size = %d (result %d), want %d",
					len(valImages), len(result.Val), tt.n-wantTrain)
			}
			if result.Moved != tt.n || result.MovedTrain != wantTrain {
				t.Errorf("Moved = %d, MovedTrain = %d", result.Moved, result.MovedTrain)
			}

			// Disjoint and complete.
			seen := make(map[string]bool, tt.n)
			for _, name := range append(trainImages, valImages...) {
				if seen[name] {
					t.Errorf("%s in both sets", name)
				}
				seen[name] = true
			}
			if len(seen) != tt.n {
				t.Errorf("got %d distinct images, want %d", len(seen), tt.n)
			}
			if left := listNames(t, fs, "/data/images"); len(left) != 0 {
				t.Errorf("images left behind: %v", left)
			}

			// Pairing.
			for _, set := range []string{TrainDir, ValDir} {
				images := stems(listNames(t, fs, filepath.Join("/data/images", set)))
				labels := stems(listNames(t, fs, filepath.Join("/data/labels", set)))
				if strings.Join(images, ",") != strings.Join(labels, ",") {
					t.Errorf("%s: images %v and labels %v do not pair up", set, images, labels)
				}
			}
		})
	}
}

func TestSplitDatasetSeeded(t *testing.T) {
	run := func() []string {
		fs := afero.NewMemMapFs()
		createCorpus(t, fs, 20)
		if _, err := SplitDataset(fs, "/data/images", "/data/labels",
			SplitOptions{TrainRatio: 0.5, Rand: rand.New(rand.NewSource(42))}); err != nil {
			t.Fatalf("SplitDataset failed: %v", err)
		}
		return listNames(t, fs, "/data/images/train")
	}

	a, b := run(), run()
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("same seed gave different partitions: %v vs %v", a, b)
	}
}

func TestSplitDatasetUnpairedImageStays(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/images/a.jpg":  "a",
		"/data/images/b.png":  "b",
		"/data/images/c.jpeg": "c",
		"/data/labels/a.txt":  "0 0.5 0.5 0.1 0.1\n",
		"/data/labels/b.txt":  "1 0.5 0.5 0.1 0.1\n",
	})

	result, err := SplitDataset(fs, "/data/images", "/data/labels",
		SplitOptions{TrainRatio: 0.5, Rand: rand.New(rand.NewSource(7))})
	if err != nil {
		t.Fatalf("SplitDataset failed: %v", err)
	}

	if result.Moved != 2 {
		t.Errorf("Moved = %d, want 2", result.Moved)
	}
	if len(result.Unpaired) != 1 || result.Unpaired[0].Path != "/data/images/c.jpeg" {
		t.Fatalf("Unpaired = %v, want c.jpeg", result.Unpaired)
	}
	var unpaired *UnpairedEntryError
	if !errors.As(result.Unpaired[0], &unpaired) || unpaired.LabelPath != "/data/labels/c.txt" {
		t.Errorf("Unpaired[0] = %v", result.Unpaired[0])
	}

	if got := listNames(t, fs, "/data/images"); strings.Join(got, ",") != "c.jpeg" {
		t.Errorf("images root = %v, want [c.jpeg]", got)
	}
	for _, set := range []string{"/data/images/train", "/data/images/val"} {
		for _, name := range listNames(t, fs, set) {
			if name == "c.jpeg" {
				t.Errorf("unpaired image moved to %s", set)
			}
		}
	}
}

func TestSplitDatasetExtensionCase(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{}
	for _, name := range []string{"a.JPG", "b.jpg", "c.Png", "d.TIFF", "e.bmp", "f.JpEg"} {
		files["/data/images/"+name] = name
		files["/data/labels/"+stem(name)+".txt"] = "0 0.5 0.5 0.1 0.1\n"
	}
	files["/data/images/notes.txt"] = "not an image"
	files["/data/images/g.gif"] = "unsupported"
	writeFiles(t, fs, files)

	result, err := SplitDataset(fs, "/data/images", "/data/labels",
		SplitOptions{TrainRatio: 0.5, Rand: rand.New(rand.NewSource(1))})
	if err != nil {
		t.Fatalf("SplitDataset failed: %v", err)
	}
	if result.Total != 6 || result.Moved != 6 {
		t.Errorf("Total = %d, Moved = %d, want 6, 6", result.Total, result.Moved)
	}
	if got := listNames(t, fs, "/data/images"); strings.Join(got, ",") != "g.gif,notes.txt" {
		t.Errorf("images root = %v", got)
	}
}

func TestSplitDatasetHardFailures(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		ratio   float64
		wantErr error
	}{
		{"missing images", map[string]string{"/data/labels/a.txt": ""}, 0.8, ErrMissingInput},
		{"missing labels", map[string]string{"/data/images/a.jpg": ""}, 0.8, ErrMissingInput},
		{"no images", map[string]string{"/data/images/a.txt": "", "/data/labels/a.txt": ""},
			0.8, ErrEmptyCorpus},
		{"zero ratio", map[string]string{"/data/images/a.jpg": "", "/data/labels/a.txt": ""},
			0, ErrInvalidRatio},
		{"ratio one", map[string]string{"/data/images/a.jpg": "", "/data/labels/a.txt": ""},
			1, ErrInvalidRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, tt.files)

			_, err := SplitDataset(fs, "/data/images", "/data/labels", SplitOptions{TrainRatio: tt.ratio})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			for _, dir := range []string{"/data/images/train", "/data/images/val",
				"/data/labels/train", "/data/labels/val"} {
				if ok, _ := afero.Exists(fs, dir); ok {
					t.Errorf("%s created despite failure", dir)
				}
			}
			for path := range tt.files {
				if ok, _ := afero.Exists(fs, path); !ok {
					t.Errorf("%s was moved", path)
				}
			}
		})
	}
}

// failingRenameFs fails renames of files whose source matches fail.
type failingRenameFs struct {
	afero.Fs
	fail func(oldname string) error
}

func (fs failingRenameFs) Rename(oldname, newname string) error {
	if err := fs.fail(oldname); err != nil {
		return err
	}
	return fs.Fs.Rename(oldname, newname)
}

func TestSplitDatasetKeepsPairsTogether(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{
		"/data/images/a.jpg": "a",
		"/data/images/b.jpg": "b",
		"/data/labels/a.txt": "0 0.5 0.5 0.1 0.1\n",
		"/data/labels/b.txt": "0 0.5 0.5 0.1 0.1\n",
	})
	fs := failingRenameFs{Fs: base, fail: func(oldname string) error {
		if oldname == "/data/labels/b.txt" {
			return &os.LinkError{Op: "rename", Old: oldname, Err: syscall.EACCES}
		}
		return nil
	}}

	result, err := SplitDataset(fs, "/data/images", "/data/labels",
		SplitOptions{TrainRatio: 0.5, Rand: rand.New(rand.NewSource(3))})
	if err != nil {
		t.Fatalf("SplitDataset failed: %v", err)
	}
	if result.Moved != 1 {
		t.Errorf("Moved = %d, want 1", result.Moved)
	}
	if len(result.Failed) != 1 || result.Failed[0].Path != "/data/images/b.jpg" {
		t.Errorf("Failed = %v, want b.jpg", result.Failed)
	}

	// b.jpg was moved back next to its label.
	if got := listNames(t, base, "/data/images"); strings.Join(got, ",") != "b.jpg" {
		t.Errorf("images root = %v, want [b.jpg]", got)
	}
	if got := listNames(t, base, "/data/labels"); strings.Join(got, ",") != "b.txt" {
		t.Errorf("labels root = %v, want [b.txt]", got)
	}
}

func TestMoveFileAcrossDevices(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{"/src/a.jpg": "image bytes"})
	_ = base.MkdirAll("/dst", 0755)
	fs := failingRenameFs{Fs: base, fail: func(oldname string) error {
		if !strings.HasSuffix(oldname, ".partial") {
			return &os.LinkError{Op: "rename", Old: oldname, Err: syscall.EXDEV}
		}
		return nil
	}}

	if err := moveFile(fs, "/src/a.jpg", "/dst/a.jpg"); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}
	if got := readFile(t, base, "/dst/a.jpg"); got != "image bytes" {
		t.Errorf("dst content = %q", got)
	}
	if ok, _ := afero.Exists(base, "/src/a.jpg"); ok {
		t.Error("source still exists")
	}
	if got := listNames(t, base, "/dst"); strings.Join(got, ",") != "a.jpg" {
		t.Errorf("dst dir = %v, staging file left behind", got)
	}
}

func TestMoveFileOtherErrorsNoCopy(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{"/src/a.jpg": "image bytes"})
	_ = base.MkdirAll("/dst", 0755)
	fs := failingRenameFs{Fs: base, fail: func(oldname string) error {
		return &os.LinkError{Op: "rename", Old: oldname, Err: syscall.EACCES}
	}}

	if err := moveFile(fs, "/src/a.jpg", "/dst/a.jpg"); !errors.Is(err, syscall.EACCES) {
		t.Fatalf("expected EACCES, got %v", err)
	}
	if ok, _ := afero.Exists(base, "/dst/a.jpg"); ok {
		t.Error("destination created despite failure")
	}
}
