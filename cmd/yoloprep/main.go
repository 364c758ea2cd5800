// Prepares object detection datasets for YOLO training: converts Pascal VOC annotations to YOLO
// labels, splits images and labels into training and validation sets, and exports or previews
// the result.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sensorable/yoloprep"
)

type command struct {
	name  string
	usage string
	run   func(args []string)
}

var commands = []command{
	{"convert", "Convert VOC XML annotations to YOLO label files", runConvert},
	{"split", "Split images and labels into train and val sets", runSplit},
	{"tfrecord", "Export an image/label directory pair as TFRecord files", runTFRecord},
	{"preview", "Draw labels onto images or crop the labelled objects", runPreview},
}

// fs is the filesystem all commands operate on.
var fs = afero.NewOsFs()

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
	for _, c := range commands {
		_, _ = fmt.Fprintf(os.Stderr, "  %s\t%s\n", c.name, c.usage)
	}
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = fmt.Fprintf(os.Stderr, "Run '%s <command> -h' for the options of a command.\n",
		filepath.Base(os.Args[0]))
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	for _, c := range commands {
		if c.name == os.Args[1] {
			c.run(os.Args[2:])
			return
		}
	}
	log.Printf("Unknown command %q", os.Args[1])
	usage()
	os.Exit(1)
}

// newFlagSet returns a flag set for the command and a function that prints msg and the usage of
// the flag set before exiting.
func newFlagSet(name string) (*flag.FlagSet, func(msg ...interface{})) {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flags.Usage()
		os.Exit(1)
	}
	return flags, printUsageAndExit
}

// classTableFlags registers the class table flags shared by all commands.
func classTableFlags(flags *flag.FlagSet) func() (yoloprep.ClassTable, error) {
	classes := flags.String("classes", strings.Join(yoloprep.DefaultClasses, ","),
		"Comma-separated class names (`name[,...]`) in class ID order")
	dataYAML := flags.String("classes-from", "",
		"Read the class names from the data.yaml file at `path` instead of -classes")

	return func() (yoloprep.ClassTable, error) {
		if *dataYAML != "" {
			cfg, err := yoloprep.ReadDatasetConfig(fs, *dataYAML)
			if err != nil {
				return yoloprep.ClassTable{}, err
			}
			return yoloprep.NewClassTable(cfg.Names)
		}
		return yoloprep.NewClassTable(strings.Split(*classes, ","))
	}
}

// exitOnHardFailure terminates the program for errors that aborted an operation.
func exitOnHardFailure(what string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, yoloprep.ErrMissingInput):
		log.Fatalf("%s failed, missing directory: %v", what, err)
	case errors.Is(err, yoloprep.ErrEmptyCorpus):
		log.Fatalf("%s failed, nothing to do: %v", what, err)
	default:
		log.Fatalf("%s failed: %v", what, err)
	}
}

func runConvert(args []string) {
	flags, printUsageAndExit := newFlagSet("convert")
	annotationsDir := flags.String("annotations", "annotations",
		"The `path` to the directory with VOC XML annotation files")
	labelsDir := flags.String("labels", "labels",
		"The `path` to the YOLO label output directory (created if missing)")
	labelMappings := flags.String("map-labels", "",
		"Comma-separated list of old=new label (sub-)string replacements applied before the class"+
			" lookup")
	emitEmpty := flags.Bool("emit-empty", false,
		"Write an empty label file for annotation files without known objects")
	loadClasses := classTableFlags(flags)
	_ = flags.Parse(args)

	classes, err := loadClasses()
	if err != nil {
		printUsageAndExit("Invalid class table: ", err)
	}
	if filepath.Clean(*annotationsDir) == filepath.Clean(*labelsDir) {
		printUsageAndExit("The annotation and label paths cannot be identical")
	}
	var mappings []string
	if *labelMappings != "" {
		mappings = strings.Split(*labelMappings, ",")
	}

	result, err := yoloprep.ConvertVOCToYOLO(fs, filepath.Clean(*annotationsDir),
		filepath.Clean(*labelsDir), yoloprep.ConvertOptions{
			Classes:       classes,
			LabelMappings: mappings,
			EmitEmpty:     *emitEmpty,
		})
	exitOnHardFailure("Conversion", err)

	log.Printf("Converted %d/%d files (%d without known objects, %d failed, %d unknown objects)",
		result.Converted, result.Total, result.Empty, len(result.Failed), len(result.UnknownClasses))
}

func runSplit(args []string) {
	flags, printUsageAndExit := newFlagSet("split")
	imagesDir := flags.String("images", "images", "The `path` to the image directory")
	labelsDir := flags.String("labels", "labels", "The `path` to the label directory")
	trainRatio := flags.Float64("train-ratio", 0.8,
		"The fraction of images used for training, in (0, 1)")
	seed := flags.Int64("seed", 0, "The shuffle seed (zero seeds from the clock)")
	dataYAML := flags.String("data-yaml", "",
		"Write a YOLO dataset config to `path` after splitting")
	loadClasses := classTableFlags(flags)
	_ = flags.Parse(args)

	if !(*trainRatio > 0 && *trainRatio < 1) {
		printUsageAndExit("Invalid -train-ratio, must be in (0, 1): ", *trainRatio)
	}
	classes, err := loadClasses()
	if err != nil {
		printUsageAndExit("Invalid class table: ", err)
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	log.Print("Shuffle seed: ", s)

	result, err := yoloprep.SplitDataset(fs, filepath.Clean(*imagesDir), filepath.Clean(*labelsDir),
		yoloprep.SplitOptions{TrainRatio: *trainRatio, Rand: rand.New(rand.NewSource(s))})
	exitOnHardFailure("Split", err)

	log.Printf("Moved %d train and %d val pairs, %d images without labels, %d failed",
		result.MovedTrain, result.MovedVal, len(result.Unpaired), len(result.Failed))

	if *dataYAML != "" {
		root, err := filepath.Abs(filepath.Dir(filepath.Clean(*imagesDir)))
		if err != nil {
			log.Fatal("Cannot resolve the dataset root: ", err)
		}
		cfg := yoloprep.NewDatasetConfig(root, classes)
		cfg.Train = filepath.ToSlash(filepath.Join(filepath.Base(*imagesDir), yoloprep.TrainDir))
		cfg.Val = filepath.ToSlash(filepath.Join(filepath.Base(*imagesDir), yoloprep.ValDir))
		if err := yoloprep.WriteDatasetConfig(fs, *dataYAML, cfg); err != nil {
			log.Fatal("Failed to write the dataset config: ", err)
		}
		log.Print("Wrote the dataset config to ", *dataYAML)
	}
}

func runTFRecord(args []string) {
	flags, printUsageAndExit := newFlagSet("tfrecord")
	imagesDir := flags.String("images", "", "The `path` to the image directory, e.g. images/train")
	labelsDir := flags.String("labels", "", "The `path` to the label directory, e.g. labels/train")
	out := flags.String("out", "", "The TFRecord output file `path`")
	labelMap := flags.String("label-map", "label_map.pbtxt", "The label map output file `path`")
	numShards := flags.Int("num-shards", 1, "The number of shard files to create")
	loadClasses := classTableFlags(flags)
	_ = flags.Parse(args)

	if *imagesDir == "" || *labelsDir == "" || *out == "" {
		printUsageAndExit("Missing -images, -labels or -out")
	}
	if *numShards < 1 {
		printUsageAndExit("Invalid -num-shards: ", *numShards)
	}
	classes, err := loadClasses()
	if err != nil {
		printUsageAndExit("Invalid class table: ", err)
	}

	n, err := yoloprep.WriteTFRecord(fs, filepath.Clean(*imagesDir), filepath.Clean(*labelsDir),
		filepath.Clean(*out), filepath.Clean(*labelMap), classes, *numShards)
	exitOnHardFailure("TFRecord export", err)

	log.Printf("Successfully wrote %d examples to %s", n, *out)
}

func runPreview(args []string) {
	flags, printUsageAndExit := newFlagSet("preview")
	imagesDir := flags.String("images", "", "The `path` to the image directory")
	labelsDir := flags.String("labels", "", "The `path` to the label directory")
	out := flags.String("out", "", "The `path` to the preview output directory")
	resizeLonger := flags.Int("resize-longer", 0,
		"The target `length` for the longer side of the output images (zero keeps the size)")
	cropObjects := flags.Bool("crop-objects", false,
		"Write the labelled objects as individual crops instead of annotated images")
	jpegQuality := flags.Int("jpeg-quality", 90, "The quality to use when encoding JPEGs [1, 100]")
	loadClasses := classTableFlags(flags)
	_ = flags.Parse(args)

	if *imagesDir == "" || *labelsDir == "" || *out == "" {
		printUsageAndExit("Missing -images, -labels or -out")
	}
	if filepath.Clean(*imagesDir) == filepath.Clean(*out) {
		printUsageAndExit("The image input and output paths cannot be identical")
	}
	if *resizeLonger < 0 {
		printUsageAndExit("Invalid -resize-longer: ", *resizeLonger)
	}
	if *jpegQuality < 1 || *jpegQuality > 100 {
		*jpegQuality = 90
		log.Print("Invalid JPEG quality, setting it to ", *jpegQuality)
	}
	classes, err := loadClasses()
	if err != nil {
		printUsageAndExit("Invalid class table: ", err)
	}

	n, err := yoloprep.RenderPreviews(fs, filepath.Clean(*imagesDir), filepath.Clean(*labelsDir),
		filepath.Clean(*out), yoloprep.PreviewOptions{
			Classes:     classes,
			LongerSide:  *resizeLonger,
			CropObjects: *cropObjects,
			JPEGQuality: *jpegQuality,
		})
	exitOnHardFailure("Preview", err)

	log.Printf("Successfully wrote %d images to %s", n, *out)
}
