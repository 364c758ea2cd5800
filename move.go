package yoloprep

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// moveFile moves src to dst. A rename that fails because src and dst are on different devices
// falls back to copyAndRemove.
func moveFile(fs afero.Fs, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	return copyAndRemove(fs, src, dst)
}

// copyAndRemove copies src to a staging file next to dst, verifies its size, renames it to dst
// and removes src. The staging file is removed on failure, so dst is either complete or absent.
func copyAndRemove(fs afero.Fs, src, dst string) (err error) {
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}

	staging := filepath.Join(filepath.Dir(dst),
		fmt.Sprintf(".%s.%s.partial", filepath.Base(dst), uuid.NewString()))
	defer func() {
		if err != nil {
			_ = fs.Remove(staging)
		}
	}()

	if err := copyFile(fs, src, staging, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to copy %q: %v", src, err)
	}
	if copied, err := fs.Stat(staging); err != nil {
		return err
	} else if copied.Size() != info.Size() {
		return fmt.Errorf("incomplete copy of %q: %d of %d bytes", src, copied.Size(), info.Size())
	}

	if err := fs.Rename(staging, dst); err != nil {
		return err
	}
	return fs.Remove(src)
}

func copyFile(fs afero.Fs, src, dst string, perm os.FileMode) (err error) {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// movePair moves the image and label of e into imageDir and labelDir, keeping their file names.
// If the label cannot be moved, the image is moved back so that the pair is not split.
func movePair(fs afero.Fs, e CorpusEntry, imageDir, labelDir string) error {
	imageDst := filepath.Join(imageDir, filepath.Base(e.ImagePath))
	labelDst := filepath.Join(labelDir, filepath.Base(e.LabelPath))

	if err := moveFile(fs, e.ImagePath, imageDst); err != nil {
		return fmt.Errorf("failed to move %q: %v", e.ImagePath, err)
	}
	if err := moveFile(fs, e.LabelPath, labelDst); err != nil {
		if rbErr := moveFile(fs, imageDst, e.ImagePath); rbErr != nil {
			return fmt.Errorf("failed to move %q: %v; restoring %q also failed: %v",
				e.LabelPath, err, e.ImagePath, rbErr)
		}
		return fmt.Errorf("failed to move %q: %v", e.LabelPath, err)
	}
	return nil
}
