package yoloprep

// The intermediate annotation representation shared by the VOC reader, the YOLO writer and the
// preview renderer.

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Coords [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label  string

	boxErr error // Set if the source box was missing or malformed; Coords are then unset.
}

// BoxErr returns the reason the source bounding box could not be read, or nil.
func (a Annotation) BoxErr() error {
	return a.boxErr
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// clamp restricts the bounding box to an image of the given size. Returns false if nothing of the
// box is left.
func (a *Annotation) clamp(width, height int) bool {
	limits := [4]float64{float64(width), float64(height), float64(width), float64(height)}
	for i := range a.Coords {
		a.Coords[i] = math.Max(0, math.Min(a.Coords[i], limits[i]))
	}
	return a.Width() > 0 && a.Height() > 0
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated file.
	Width       int          // Image width in pixels.
	Height      int          // Image height in pixels.
}

// labelReplacement is a single old=new label (sub-)string replacement.
type labelReplacement struct{ old, new string }

// parseLabelMappings extracts the replacements from mappings of the format old=new.
func parseLabelMappings(mappings []string) ([]labelReplacement, error) {
	replacements := make([]labelReplacement, 0, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return nil, fmt.Errorf("invalid mapping: %v", v)
		}
		replacements = append(replacements, labelReplacement{old: a[0], new: a[1]})
	}
	return replacements, nil
}

// mapLabels applies the replacements, in order, to all labels. Returns the number of labels that
// changed.
func (f *AnnotatedFile) mapLabels(replacements []labelReplacement) int {
	count := 0
	for i := range f.Annotations {
		a := &f.Annotations[i]

		oldLabel := a.Label
		for _, r := range replacements {
			a.Label = strings.ReplaceAll(a.Label, r.old, r.new)
		}

		if a.Label != oldLabel {
			count++
		}
	}
	return count
}

// objectCrop is an image region cropped for a single annotation.
type objectCrop struct {
	Rect image.Rectangle
	Path string
	Annotation
}

// cropRects returns a crop rectangle for each annotation with a bounding box that is at least
// partially contained in bounds.
//
// The crop paths are derived from f.FilePath, with a "_xx" suffix appended before the file
// extension, where xx is the index in f.Annotations.
func (f *AnnotatedFile) cropRects(bounds image.Rectangle) []objectCrop {
	crops := make([]objectCrop, 0, len(f.Annotations))
	ext := filepath.Ext(f.FilePath)

	for i, a := range f.Annotations {
		// Clip the bounding box to the image bounds.
		r := image.Rect(int(math.Round(a.Coords[0])), int(math.Round(a.Coords[1])),
			int(math.Round(a.Coords[2])), int(math.Round(a.Coords[3])))
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}

		path := fmt.Sprintf("%s_%02d%s", f.FilePath[0:len(f.FilePath)-len(ext)], i, ext)
		crops = append(crops, objectCrop{Rect: r, Path: path, Annotation: a})
	}

	return crops
}

// scaleCoords scales all Annotations.Coords by the given scale factors.
func (f *AnnotatedFile) scaleCoords(width, height float64) {
	for i := range f.Annotations {
		for j := 0; j < 4; j++ {
			if j&1 == 0 {
				f.Annotations[i].Coords[j] *= width
			} else {
				f.Annotations[i].Coords[j] *= height
			}
		}
	}
}
