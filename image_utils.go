package yoloprep

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"math"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// resizeImage resamples the image so that its longer side has length longerSide, keeping the
// aspect ratio.
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
	resized image.Image, scaleWidth, scaleHeight float64) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	shorterSide := int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	if shorterSide < 1 {
		shorterSide = 1
	}

	// Select the filter based on the direction of the rescaling operation.
	filter := upsamplingFilter
	if longerSide < imgLonger {
		filter = downsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(fs afero.Fs, path string) (config image.Config, format string, err error) {
	file, err := fs.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path.
func loadImage(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q: %v", path, err)
	}
	return img, nil
}

// saveImage encodes the image according to the file extension of path and writes it to path.
func saveImage(fs afero.Fs, path string, img image.Image, jpegQuality int) (err error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}

	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	return imaging.Encode(f, img, format, imaging.JPEGQuality(jpegQuality))
}
