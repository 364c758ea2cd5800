// Package yoloprep prepares object detection datasets for YOLO trainers: it converts Pascal VOC
// annotations to normalized YOLO label files and partitions image/label corpora into training and
// validation sets.
package yoloprep

// YOLO label file specific functionality.

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// YOLOLabel is a single line of a YOLO label file. Coordinates are fractions of the image size.
type YOLOLabel struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// String formats the label as "<class_id> <x_center> <y_center> <width> <height>" with six
// decimals.
func (l YOLOLabel) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.ClassID, l.XCenter, l.YCenter, l.Width, l.Height)
}

// Box returns the absolute x1, y1, x2, y2 coordinates of the label in an image of the given size.
func (l YOLOLabel) Box(imgWidth, imgHeight int) [4]float64 {
	w, h := float64(imgWidth), float64(imgHeight)
	return [4]float64{
		(l.XCenter - l.Width/2) * w,
		(l.YCenter - l.Height/2) * h,
		(l.XCenter + l.Width/2) * w,
		(l.YCenter + l.Height/2) * h,
	}
}

// ToYOLO normalizes the bounding box of a by the image size.
func ToYOLO(a Annotation, classID, imgWidth, imgHeight int) YOLOLabel {
	w, h := float64(imgWidth), float64(imgHeight)
	return YOLOLabel{
		ClassID: classID,
		XCenter: (a.Coords[0] + a.Coords[2]) / (2 * w),
		YCenter: (a.Coords[1] + a.Coords[3]) / (2 * h),
		Width:   a.Width() / w,
		Height:  a.Height() / h,
	}
}

// ParseYOLOLabel parses a single label line.
func ParseYOLOLabel(line string) (YOLOLabel, error) {
	var l YOLOLabel

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("expected 5 values in %q, got %d", line, len(tokens))
	}

	id, err := strconv.Atoi(tokens[0])
	if err != nil || id < 0 {
		return l, fmt.Errorf("invalid class id in %q", line)
	}
	l.ClassID = id

	values := []*float64{&l.XCenter, &l.YCenter, &l.Width, &l.Height}
	for i, v := range values {
		if *v, err = strconv.ParseFloat(tokens[i+1], 64); err != nil {
			return l, fmt.Errorf("unexpected values in %q: %v", line, err)
		}
	}

	return l, nil
}

// ReadYOLOLabels reads all labels from the label file at path. Blank lines are ignored.
func ReadYOLOLabels(fs afero.Fs, path string) ([]YOLOLabel, error) {
	lines, err := readLines(fs, path)
	if err != nil {
		return nil, err
	}

	labels := make([]YOLOLabel, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l, err := ParseYOLOLabel(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %v", path, i+1, err)
		}
		labels = append(labels, l)
	}

	return labels, nil
}

// WriteYOLOLabels writes labels to path, one per line, replacing any existing file.
func WriteYOLOLabels(fs afero.Fs, path string, labels []YOLOLabel) (err error) {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, l := range labels {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return w.Flush()
}

// fromYOLO converts labels to the intermediate representation for an image of the given size.
// Class IDs missing from classes keep their numeric ID as label.
func fromYOLO(labels []YOLOLabel, imagePath string, imgWidth, imgHeight int,
	classes ClassTable) AnnotatedFile {

	fileData := AnnotatedFile{
		Annotations: make([]Annotation, len(labels)),
		FilePath:    imagePath,
		Width:       imgWidth,
		Height:      imgHeight,
	}
	for i, l := range labels {
		name := classes.Name(l.ClassID)
		if name == "" {
			name = strconv.Itoa(l.ClassID)
		}
		fileData.Annotations[i] = Annotation{Coords: l.Box(imgWidth, imgHeight), Label: name}
	}
	return fileData
}
