package yoloprep

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ImageExtensions are the recognized image file extensions. Matching is case-insensitive.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// CorpusEntry is an image and its label file, joined by their shared stem.
type CorpusEntry struct {
	Stem      string
	ImagePath string
	LabelPath string
}

// requireDir returns an error wrapping ErrMissingInput unless dirPath is an existing directory.
func requireDir(fs afero.Fs, dirPath string) error {
	ok, err := afero.DirExists(fs, dirPath)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingInput, dirPath)
	}
	return nil
}

// filesByExtInDir returns all regular files found directly in directory dirPath whose extension
// matches one of exts, ignoring case. All files are returned if exts is empty. The paths are
// sorted by file name and every directory entry is returned at most once.
func filesByExtInDir(fs afero.Fs, dirPath string, exts ...string) ([]string, error) {
	if err := requireDir(fs, dirPath); err != nil {
		return nil, err
	}
	fileList, err := afero.ReadDir(fs, dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %v", dirPath, err)
	}

	files := make([]string, 0, len(fileList))
	for _, file := range fileList {
		// Must be a regular file or a symlink and have one of the requested extensions.
		if !file.Mode().IsRegular() && (file.Mode()&os.ModeSymlink == 0) {
			continue
		}
		name := file.Name()
		if len(exts) > 0 && !hasExt(name, exts) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}

	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// stem returns the base name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return base[0 : len(base)-len(filepath.Ext(base))]
}

// pairedEntries matches the images in imagesDir by stem to ".txt" label files in labelsDir.
//
// Images without a label file are returned separately in unpaired.
func pairedEntries(fs afero.Fs, imagesDir, labelsDir string) (
	entries []CorpusEntry, unpaired []string, err error) {

	if err := requireDir(fs, labelsDir); err != nil {
		return nil, nil, err
	}
	images, err := filesByExtInDir(fs, imagesDir, ImageExtensions...)
	if err != nil {
		return nil, nil, err
	}

	entries = make([]CorpusEntry, 0, len(images))
	for _, imagePath := range images {
		e, ok, err := lookupEntry(fs, imagePath, labelsDir)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			log.Printf("No label file for %q, skipping", imagePath)
			unpaired = append(unpaired, imagePath)
			continue
		}
		entries = append(entries, e)
	}

	return entries, unpaired, nil
}

// lookupEntry finds the label file for the image at imagePath in labelsDir.
func lookupEntry(fs afero.Fs, imagePath, labelsDir string) (CorpusEntry, bool, error) {
	s := stem(imagePath)
	e := CorpusEntry{
		Stem:      s,
		ImagePath: imagePath,
		LabelPath: filepath.Join(labelsDir, s+".txt"),
	}
	info, err := fs.Stat(e.LabelPath)
	if os.IsNotExist(err) {
		return e, false, nil
	} else if err != nil {
		return e, false, fmt.Errorf("cannot access %q: %v", e.LabelPath, err)
	}
	return e, !info.IsDir(), nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(fs afero.Fs, path string) (lines []string, err error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %v", path, err)
	}

	return lines, nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
