package yoloprep

// Pascal VOC specific functionality.

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// VOCBox is the bounding box of a VOC object. Values are kept as text so that missing elements
// can be told apart from zero values.
type VOCBox struct {
	XMin string `xml:"xmin"`
	YMin string `xml:"ymin"`
	XMax string `xml:"xmax"`
	YMax string `xml:"ymax"`
}

// VOCObject is a single object annotation within a VOC file.
type VOCObject struct {
	Name   *string `xml:"name"`
	BndBox *VOCBox `xml:"bndbox"`
}

// VOCSize is the image size element of a VOC file.
type VOCSize struct {
	Width  string `xml:"width"`
	Height string `xml:"height"`
}

// VOCAnnotation defines the VOC annotation structure for a single image.
type VOCAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Filename string      `xml:"filename"`
	Size     *VOCSize    `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

// FromVOC reads the VOC annotation file at path and converts it to the intermediate
// representation. All failures are returned as *ParseError.
//
// A missing or malformed bndbox does not fail the file here, since objects of unknown classes are
// skipped without looking at their boxes. It is reported by Annotation.BoxErr instead.
func FromVOC(fs afero.Fs, path string) (AnnotatedFile, error) {
	enc, err := afero.ReadFile(fs, path)
	if err != nil {
		return AnnotatedFile{}, &ParseError{Path: path, Err: err}
	}

	var voc VOCAnnotation
	if err := xml.Unmarshal(enc, &voc); err != nil {
		return AnnotatedFile{}, &ParseError{Path: path, Err: err}
	}

	fileData, err := voc.toAnnotatedFile()
	if err != nil {
		return AnnotatedFile{}, &ParseError{Path: path, Err: err}
	}
	fileData.FilePath = path

	return fileData, nil
}

// toAnnotatedFile validates the size and object names of voc and converts them.
func (voc *VOCAnnotation) toAnnotatedFile() (AnnotatedFile, error) {
	if voc.Size == nil {
		return AnnotatedFile{}, fmt.Errorf("missing size element")
	}
	width, err := parsePositiveInt("size/width", voc.Size.Width)
	if err != nil {
		return AnnotatedFile{}, err
	}
	height, err := parsePositiveInt("size/height", voc.Size.Height)
	if err != nil {
		return AnnotatedFile{}, err
	}

	fileData := AnnotatedFile{
		Annotations: make([]Annotation, 0, len(voc.Objects)),
		Width:       width,
		Height:      height,
	}
	for i, obj := range voc.Objects {
		if obj.Name == nil {
			return AnnotatedFile{}, fmt.Errorf("object %d: missing name element", i)
		}

		a := Annotation{Label: strings.TrimSpace(*obj.Name)}
		a.Coords, a.boxErr = obj.BndBox.coords()
		if a.boxErr != nil {
			a.boxErr = fmt.Errorf("object %d: %v", i, a.boxErr)
		}
		fileData.Annotations = append(fileData.Annotations, a)
	}

	return fileData, nil
}

// coords parses the box values. b may be nil.
func (b *VOCBox) coords() (coords [4]float64, err error) {
	if b == nil {
		return coords, fmt.Errorf("missing bndbox element")
	}
	values := []struct{ name, text string }{
		{"xmin", b.XMin},
		{"ymin", b.YMin},
		{"xmax", b.XMax},
		{"ymax", b.YMax},
	}
	for i, v := range values {
		text := strings.TrimSpace(v.text)
		if text == "" {
			return coords, fmt.Errorf("missing bndbox/%s", v.name)
		}
		if coords[i], err = strconv.ParseFloat(text, 64); err != nil {
			return coords, fmt.Errorf("invalid bndbox/%s: %v", v.name, err)
		}
	}
	return coords, nil
}

func parsePositiveInt(name, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: %d is not positive", name, v)
	}
	return v, nil
}
