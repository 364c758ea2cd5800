package yoloprep

// Rendering of YOLO labels onto images for visual inspection.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PreviewOptions configures RenderPreviews.
type PreviewOptions struct {
	Classes     ClassTable // Names and colours of the class IDs.
	LongerSide  int        // Resize so the longer side has this length; zero keeps the size.
	CropObjects bool       // Write one crop per object instead of an annotated copy.
	JPEGQuality int        // Quality of JPEG outputs in [1, 100].
}

// boxThickness is the line width of rendered bounding boxes in pixels.
const boxThickness = 2

// RenderPreviews draws the labels of every image/label pair in imagesDir and labelsDir onto a copy
// of the image and writes it to outDir under the image's file name. With opts.CropObjects the
// labelled objects are cropped and written as <stem>_NN<ext> instead.
//
// Images are processed concurrently. Returns the number of images written.
func RenderPreviews(fs afero.Fs, imagesDir, labelsDir, outDir string, opts PreviewOptions) (
	int, error) {

	if opts.Classes.Len() == 0 {
		opts.Classes = DefaultClassTable()
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}

	entries, _, err := pairedEntries(fs, imagesDir, labelsDir)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: no labelled images in %q", ErrEmptyCorpus, imagesDir)
	}
	if err := fs.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("cannot create directory %q: %v", outDir, err)
	}
	log.Printf("Rendering previews for %d images", len(entries))

	r := &previewRenderer{
		fs:      fs,
		outDir:  outDir,
		opts:    opts,
		palette: classPalette(opts.Classes.Len()),
	}

	// Limit the number of goroutines in flight, as they load potentially large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(entries) < numTasks {
		numTasks = len(entries)
	}
	workQueue := make(chan CorpusEntry, 2*numTasks)
	errors := make(chan error, 1)
	var written int
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for e := range workQueue {
				n, err := r.render(e)
				if err != nil {
					select {
					case errors <- fmt.Errorf("%s: %v", e.ImagePath, err):
					default:
					}
				}
				mu.Lock()
				written += n
				mu.Unlock()
			}
		}()
	}

	for _, e := range entries {
		workQueue <- e
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if len(errors) > 0 {
		return written, <-errors
	}
	return written, nil
}

type previewRenderer struct {
	fs      afero.Fs
	outDir  string
	opts    PreviewOptions
	palette []classColors
}

// render processes a single entry and returns the number of images written.
func (r *previewRenderer) render(e CorpusEntry) (int, error) {
	img, err := loadImage(r.fs, e.ImagePath)
	if err != nil {
		return 0, err
	}
	labels, err := ReadYOLOLabels(r.fs, e.LabelPath)
	if err != nil {
		return 0, err
	}

	bounds := img.Bounds()
	outPath := filepath.Join(r.outDir, filepath.Base(e.ImagePath))
	fileData := fromYOLO(labels, outPath, bounds.Dx(), bounds.Dy(), r.opts.Classes)

	if r.opts.CropObjects {
		n := 0
		for _, c := range fileData.cropRects(bounds) {
			var crop image.Image = imaging.Crop(img, c.Rect)
			if r.opts.LongerSide > 0 {
				crop, _, _ = resizeImage(crop, r.opts.LongerSide, imaging.Box, imaging.Linear)
			}
			if err := saveImage(r.fs, c.Path, crop, r.opts.JPEGQuality); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	}

	// Resize first so that boxes and captions keep their pixel size.
	var out image.Image = img
	if r.opts.LongerSide > 0 {
		var scaleWidth, scaleHeight float64
		out, scaleWidth, scaleHeight = resizeImage(img, r.opts.LongerSide, imaging.Box, imaging.Linear)
		fileData.scaleCoords(scaleWidth, scaleHeight)
	}
	canvas := imaging.Clone(out)
	for _, a := range fileData.Annotations {
		colors := r.colorsFor(a.Label)
		rect := image.Rect(int(math.Round(a.Coords[0])), int(math.Round(a.Coords[1])),
			int(math.Round(a.Coords[2])), int(math.Round(a.Coords[3])))
		drawRect(canvas, rect, colors.box)
		drawCaption(canvas, rect.Min, a.Label, colors)
	}

	if err := saveImage(r.fs, outPath, canvas, r.opts.JPEGQuality); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *previewRenderer) colorsFor(label string) classColors {
	if id, ok := r.opts.Classes.ID(label); ok && id < len(r.palette) {
		return r.palette[id]
	}
	return classColors{box: color.NRGBA{128, 128, 128, 255}, text: color.NRGBA{255, 255, 255, 255}}
}

// classColors are the box colour of a class and a readable text colour on top of it.
type classColors struct {
	box  color.NRGBA
	text color.NRGBA
}

// classPalette returns n colours with hues spread evenly around the colour wheel.
func classPalette(n int) []classColors {
	palette := make([]classColors, n)
	for i := range palette {
		c := colorful.Hsv(360*float64(i)/float64(n), 0.85, 0.95).Clamped()
		r, g, b := c.RGB255()
		palette[i].box = color.NRGBA{r, g, b, 255}

		// Black text on light colours.
		if l, _, _ := c.Lab(); l > 0.6 {
			palette[i].text = color.NRGBA{0, 0, 0, 255}
		} else {
			palette[i].text = color.NRGBA{255, 255, 255, 255}
		}
	}
	return palette
}

// drawRect draws the outline of r, clipped to the image bounds.
func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawCaption draws text on a filled background above pt, or below it when there is no room.
func drawCaption(img *image.NRGBA, pt image.Point, text string, c classColors) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c.text),
		Face: face,
	}
	width := d.MeasureString(text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := pt.Y - height
	if top < img.Bounds().Min.Y {
		top = pt.Y
	}
	bg := image.Rect(pt.X, top, pt.X+width, top+height)
	draw.Draw(img, bg.Intersect(img.Bounds()), image.NewUniform(c.box), image.Point{}, draw.Src)

	d.Dot = fixed.P(pt.X+2, top+face.Metrics().Ascent.Ceil()+1)
	d.DrawString(text)
}
