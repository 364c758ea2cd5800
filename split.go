package yoloprep

// Partitioning of an image/label corpus into training and validation sets.

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// The names of the split subdirectories created under the image and label directories.
const (
	TrainDir = "train"
	ValDir   = "val"
)

// SplitOptions configures SplitDataset.
type SplitOptions struct {
	TrainRatio float64    // Fraction of the images assigned to training, in (0, 1).
	Rand       *rand.Rand // Source for the shuffle; seeded from the clock if nil.
}

// SplitResult summarizes a partitioning run.
type SplitResult struct {
	Total      int         // Number of images found.
	Train      []string    // Images assigned to the training set.
	Val        []string    // Images assigned to the validation set.
	Moved      int         // Number of image/label pairs moved.
	MovedTrain int         // Pairs moved into the training set.
	MovedVal   int         // Pairs moved into the validation set.
	Unpaired   []FileError // Images left in place because they have no label file.
	Failed     []FileError // Pairs that could not be moved.
}

// SplitDataset randomly partitions the images in imagesDir into training and validation sets and
// moves each image, together with its <stem>.txt label file from labelsDir, to
// imagesDir/{train,val} and labelsDir/{train,val}.
//
// The first floor(N*TrainRatio) images of the shuffled list form the training set. Images without
// a label file stay in imagesDir. Missing directories (ErrMissingInput), no images
// (ErrEmptyCorpus) or an invalid ratio (ErrInvalidRatio) abort before anything is created or
// moved. Moves are not transactional across the batch, but an image and its label are moved
// together or not at all.
func SplitDataset(fs afero.Fs, imagesDir, labelsDir string, opts SplitOptions) (
	SplitResult, error) {

	var result SplitResult

	if !(opts.TrainRatio > 0 && opts.TrainRatio < 1) {
		return result, fmt.Errorf("%w: %v", ErrInvalidRatio, opts.TrainRatio)
	}
	if err := requireDir(fs, imagesDir); err != nil {
		return result, err
	}
	if err := requireDir(fs, labelsDir); err != nil {
		return result, err
	}

	images, err := filesByExtInDir(fs, imagesDir, ImageExtensions...)
	if err != nil {
		return result, err
	}
	if len(images) == 0 {
		return result, fmt.Errorf("%w: no image files in %q", ErrEmptyCorpus, imagesDir)
	}
	result.Total = len(images)
	log.Printf("Found %d images to split", len(images))

	// Create the split directories.
	trainImageDir := filepath.Join(imagesDir, TrainDir)
	valImageDir := filepath.Join(imagesDir, ValDir)
	trainLabelDir := filepath.Join(labelsDir, TrainDir)
	valLabelDir := filepath.Join(labelsDir, ValDir)
	for _, d := range []string{trainImageDir, valImageDir, trainLabelDir, valLabelDir} {
		if err := fs.MkdirAll(d, 0755); err != nil {
			return result, fmt.Errorf("cannot create directory %q: %v", d, err)
		}
	}

	// Shuffle and split.
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	rng.Shuffle(len(images), func(i, j int) {
		images[i], images[j] = images[j], images[i]
	})
	splitIdx := splitIndex(len(images), opts.TrainRatio)
	result.Train = images[:splitIdx]
	result.Val = images[splitIdx:]
	log.Printf("Training set: %d images, validation set: %d images",
		len(result.Train), len(result.Val))

	groups := []struct {
		images   []string
		imageDir string
		labelDir string
		moved    *int
	}{
		{result.Train, trainImageDir, trainLabelDir, &result.MovedTrain},
		{result.Val, valImageDir, valLabelDir, &result.MovedVal},
	}
	for _, g := range groups {
		for _, imagePath := range g.images {
			e, ok, err := lookupEntry(fs, imagePath, labelsDir)
			if err != nil {
				log.Print(err)
				result.Failed = append(result.Failed, FileError{Path: imagePath, Err: err})
				continue
			}
			if !ok {
				unpaired := &UnpairedEntryError{ImagePath: imagePath, LabelPath: e.LabelPath}
				log.Printf("Warning: %v, leaving the image in place", unpaired)
				result.Unpaired = append(result.Unpaired, FileError{Path: imagePath, Err: unpaired})
				continue
			}

			if err := movePair(fs, e, g.imageDir, g.labelDir); err != nil {
				log.Print(err)
				result.Failed = append(result.Failed, FileError{Path: imagePath, Err: err})
				continue
			}
			*g.moved++
		}
	}
	result.Moved = result.MovedTrain + result.MovedVal

	log.Printf("Successfully moved %d/%d image-label pairs", result.Moved, result.Total)
	return result, nil
}

// splitIndex is floor(n*ratio).
func splitIndex(n int, ratio float64) int {
	return int(math.Floor(float64(n) * ratio))
}
