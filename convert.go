package yoloprep

// Conversion of VOC annotation directories to YOLO label directories.

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
)

// ConvertOptions configures ConvertVOCToYOLO.
type ConvertOptions struct {
	Classes       ClassTable // Closed class table; DefaultClassTable is used if empty.
	LabelMappings []string   // Optional old=new label (sub-)string replacements.
	EmitEmpty     bool       // Write an empty label file for files without retained objects.
}

// ConvertResult summarizes a conversion run.
type ConvertResult struct {
	Total          int         // Number of XML files found.
	Converted      int         // Number of label files written.
	Empty          int         // Files without retained objects and no label file written.
	Failed         []FileError // Files that could not be parsed or written.
	UnknownClasses []FileError // Skipped objects with classes missing from the class table.
	SkippedBoxes   []FileError // Skipped objects with boxes outside the image.
}

// ConvertVOCToYOLO converts every VOC XML file in annotationsDir to a YOLO label file named
// <stem>.txt in labelsDir.
//
// A missing annotationsDir returns ErrMissingInput and no XML files returns ErrEmptyCorpus; in
// both cases nothing is written. Failures of individual files or objects are logged, recorded in
// the result and do not stop the conversion.
func ConvertVOCToYOLO(fs afero.Fs, annotationsDir, labelsDir string, opts ConvertOptions) (
	ConvertResult, error) {

	var result ConvertResult

	classes := opts.Classes
	if classes.Len() == 0 {
		classes = DefaultClassTable()
	}
	replacements, err := parseLabelMappings(opts.LabelMappings)
	if err != nil {
		return result, err
	}

	xmlFiles, err := filesByExtInDir(fs, annotationsDir, ".xml")
	if err != nil {
		return result, err
	}
	if len(xmlFiles) == 0 {
		return result, fmt.Errorf("%w: no XML files in %q", ErrEmptyCorpus, annotationsDir)
	}
	result.Total = len(xmlFiles)

	if err := fs.MkdirAll(labelsDir, 0755); err != nil {
		return result, fmt.Errorf("cannot create directory %q: %v", labelsDir, err)
	}
	log.Printf("Converting %d XML files to YOLO format", len(xmlFiles))

	mapped := 0
	for _, path := range xmlFiles {
		fileData, err := FromVOC(fs, path)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			result.Failed = append(result.Failed, FileError{Path: path, Err: err})
			continue
		}
		mapped += fileData.mapLabels(replacements)

		labels := make([]YOLOLabel, 0, len(fileData.Annotations))
		var boxErr error
		for _, a := range fileData.Annotations {
			id, ok := classes.ID(a.Label)
			if !ok {
				log.Printf("Unknown class %q in %q, skipping object", a.Label, path)
				result.UnknownClasses = append(result.UnknownClasses,
					FileError{Path: path, Err: &UnknownClassError{Path: path, Class: a.Label}})
				continue
			}
			if err := a.BoxErr(); err != nil {
				boxErr = &ParseError{Path: path, Err: err}
				break
			}
			if !a.clamp(fileData.Width, fileData.Height) {
				log.Printf("Bounding box of %q outside the image in %q, skipping object", a.Label, path)
				result.SkippedBoxes = append(result.SkippedBoxes,
					FileError{Path: path, Err: fmt.Errorf("empty bounding box for %q", a.Label)})
				continue
			}
			labels = append(labels, ToYOLO(a, id, fileData.Width, fileData.Height))
		}
		if boxErr != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, boxErr)
			result.Failed = append(result.Failed, FileError{Path: path, Err: boxErr})
			continue
		}

		if len(labels) == 0 && !opts.EmitEmpty {
			result.Empty++
			continue
		}

		labelPath := filepath.Join(labelsDir, stem(path)+".txt")
		if err := WriteYOLOLabels(fs, labelPath, labels); err != nil {
			log.Printf("Failed to write %q: %v", labelPath, err)
			result.Failed = append(result.Failed, FileError{Path: path, Err: err})
			continue
		}
		result.Converted++
	}

	if len(replacements) > 0 {
		log.Printf("The label mappings changed %d labels", mapped)
	}
	log.Printf("Successfully converted %d/%d files to YOLO format in %q",
		result.Converted, result.Total, labelsDir)

	return result, nil
}
