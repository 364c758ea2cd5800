package yoloprep

// TFRecord object detection export of a YOLO split.

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"github.com/spf13/afero"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts a corpus entry to the feature map of a TensorFlow object detection
// example. Class labels are the class IDs plus one, as ID 0 is reserved for the background.
func toTFFeatures(fs afero.Fs, e CorpusEntry, classes ClassTable) (TFFeatureMap, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(fs, e.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	// Read the image data.
	imgData, err := afero.ReadFile(fs, e.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	labels, err := ReadYOLOLabels(fs, e.LabelPath)
	if err != nil {
		return nil, err
	}
	fileData := fromYOLO(labels, e.ImagePath, img.Width, img.Height, classes)

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = filepath.Base(e.ImagePath)
	f["image/source_id"] = e.Stem
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classTexts := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		xmins[i] = float32(a.Coords[0]) / float32(img.Width)
		ymins[i] = float32(a.Coords[1]) / float32(img.Height)
		xmaxs[i] = float32(a.Coords[2]) / float32(img.Width)
		ymaxs[i] = float32(a.Coords[3]) / float32(img.Height)
		classTexts[i] = a.Label
		classIDs[i] = int64(labels[i].ClassID) + 1
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classTexts
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the image/label
// pairs in imagesDir and labelsDir to one or more TFRecord files stored under recordPath (with
// suffixes added when numShards>1).
//
// The label map for classes is written to labelMapPath. Returns the number of records written.
func WriteTFRecord(fs afero.Fs, imagesDir, labelsDir, recordPath, labelMapPath string,
	classes ClassTable, numShards int) (n int, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	entries, _, err := pairedEntries(fs, imagesDir, labelsDir)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: no labelled images in %q", ErrEmptyCorpus, imagesDir)
	}
	log.Printf("Writing %d examples to %d TFRecord shard(s)", len(entries), numShards)

	var shardFile afero.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(entries)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one entry at a time.
	for i, e := range entries {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return n, err
				}
				shardFile = nil
			}

			shardPath := recordPath
			if numShards > 1 {
				shardPath += fmt.Sprintf("-%05d-of-%05d", shardIdx, numShards)
			}
			f, err := fs.Create(shardPath)
			if err != nil {
				return n, fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFFeatures(fs, e, classes)
		if err != nil {
			log.Printf("Failed to convert %q: %v", e.ImagePath, err)
			continue
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return n, fmt.Errorf("failed to write example for %q: %v", e.ImagePath, err)
		}
		n++
	}

	if err := saveTFRecordLabelMap(fs, labelMapPath, classes); err != nil {
		return n, err
	}
	return n, nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the classes as a StringIntLabelMap in prototxt format to path.
func saveTFRecordLabelMap(fs afero.Fs, path string, classes ClassTable) (err error) {
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for id, name := range classes.Names() {
		if _, err := fmt.Fprintf(w, "item {\n  name: %q\n  id: %d\n}\n", name, id+1); err != nil {
			return fmt.Errorf("failed to write the label map %q: %v", path, err)
		}
	}
	return w.Flush()
}
