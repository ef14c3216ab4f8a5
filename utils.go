package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const metersPerMile = 1600.0 // rounded, as frame densities are quoted

// --- Structs ---

type NetworkConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

type VideoConfig struct {
	Framerate int    `yaml:"framerate"`
	CRF       int    `yaml:"crf"`
	Preset    string `yaml:"preset"`
}

// Tuning groups the knobs that can come from a YAML file.
type Tuning struct {
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Hash      HashConfig      `yaml:"hash"`
	Network   NetworkConfig   `yaml:"network"`
	Video     VideoConfig     `yaml:"video"`
}

type Arguments struct {
	InputPath     string
	APIKey        string
	OutputDir     string
	OutputFile    string
	FramesPerMile float64
	MaxFrames     int
	DryRun        bool
	PrintMetadata bool
	Interp        int
	Minterp       string
	JSON          bool
	Progress      bool
	Optimize      bool
	ConfigFile    string
	CacheDB       string
	Resume        string
	SaveMetadata  string
	Preview       string
	Workers       int
	Tuning        Tuning
}

func defaultTuning() Tuning {
	return Tuning{
		Optimizer: defaultOptimizerConfig(),
		Hash:      defaultHashConfig(),
		Network:   defaultNetworkConfig(),
		Video:     VideoConfig{Framerate: 24, CRF: 24, Preset: "veryfast"},
	}
}

// --- Argument Parsing ---

// parseArguments reads flags from argv (without the program name). Tuning
// values resolve as defaults, then the -config file, then flags that were
// set explicitly.
func parseArguments(argv []string, stderr io.Writer) (*Arguments, error) {
	args := &Arguments{}
	fs := flag.NewFlagSet("streetwarp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: streetwarp [flags] <track.gpx|track.json>")
		fs.PrintDefaults()
	}

	fs.StringVar(&args.APIKey, "api-key", "", "Key for the Street View static API.")
	fs.StringVar(&args.OutputDir, "output-dir", "", "Directory for individual frames. Default: a new temp directory.")
	fs.StringVar(&args.OutputFile, "o", "streetwarp-lapse.mp4", "Output video file name.")
	fs.Float64Var(&args.FramesPerMile, "frames-per-mile", 100, "Number of frames to search for per mile.")
	fs.IntVar(&args.MaxFrames, "max-frames", 0, "Maximum number of frames, 0 for unlimited.")
	fs.BoolVar(&args.DryRun, "dry-run", false, "Only compute metadata and expected error; fetch no images.")
	fs.BoolVar(&args.PrintMetadata, "print-metadata", false, "Print metadata before creating the video (implied by -dry-run).")
	fs.IntVar(&args.Interp, "interp", 0, "Split each track segment into this many pieces. 0 derives it from -frames-per-mile.")
	fs.StringVar(&args.Minterp, "minterp", "good", "Motion smoothing: skip, fast or good.")
	fs.BoolVar(&args.JSON, "json", false, "Print results as JSON.")
	fs.BoolVar(&args.Progress, "progress", false, "Print JSON progress records to stdout.")
	fs.BoolVar(&args.Optimize, "optimize", false, "Drop visually inconsistent frames before assembling the video.")
	fs.StringVar(&args.ConfigFile, "config", "", "YAML file with tuning values.")
	fs.StringVar(&args.CacheDB, "cache-db", "", "SQLite file caching imagery metadata between runs.")
	fs.StringVar(&args.Resume, "resume", "", "Metadata result JSON to resume from, skipping sampling and metadata fetch.")
	fs.StringVar(&args.SaveMetadata, "save-metadata", "", "Write the metadata result JSON to this file.")
	fs.StringVar(&args.Preview, "preview", "", "Render a PNG preview of the sampled route to this file.")
	fs.IntVar(&args.Workers, "workers", runtime.NumCPU(), "Number of parallel workers for frame hashing.")
	concurrency := fs.Int("network-concurrency", 0, "Number of network calls to allow at once (default 40).")
	lookahead := fs.Int("lookahead", 0, "Largest frame jump the optimizer may take (default 3).")
	skipPenalty := fs.Float64("skip-penalty", 0, "Optimizer cost per skipped frame (default 0.2).")
	framerate := fs.Int("framerate", 0, "Output video framerate (default 24).")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() < 1 && args.Resume == "" {
		fs.Usage()
		return nil, fmt.Errorf("%w: missing input track", errInvalidInput)
	}
	args.InputPath = fs.Arg(0)

	args.Tuning = defaultTuning()
	if args.ConfigFile != "" {
		if err := loadTuning(args.ConfigFile, &args.Tuning); err != nil {
			return nil, err
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["network-concurrency"] {
		args.Tuning.Network.Concurrency = *concurrency
	}
	if set["lookahead"] {
		args.Tuning.Optimizer.Lookahead = *lookahead
	}
	if set["skip-penalty"] {
		args.Tuning.Optimizer.SkipPenalty = *skipPenalty
	}
	if set["framerate"] {
		args.Tuning.Video.Framerate = *framerate
	}

	if err := args.validate(); err != nil {
		return nil, err
	}
	return args, nil
}

func (a *Arguments) validate() error {
	var errs []error
	if a.APIKey == "" && !(a.DryRun && a.Resume != "") {
		errs = append(errs, errors.New("-api-key is required"))
	}
	if a.FramesPerMile <= 0 {
		errs = append(errs, fmt.Errorf("-frames-per-mile must be positive, got %v", a.FramesPerMile))
	}
	if a.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("-max-frames must not be negative, got %d", a.MaxFrames))
	}
	switch a.Minterp {
	case minterpSkip, minterpFast, minterpGood:
	default:
		errs = append(errs, fmt.Errorf("-minterp must be one of skip, fast, good; got %q", a.Minterp))
	}
	if a.Tuning.Video.Framerate <= 0 {
		errs = append(errs, fmt.Errorf("framerate must be positive, got %d", a.Tuning.Video.Framerate))
	}
	if a.Tuning.Network.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("network concurrency must be at least 1, got %d", a.Tuning.Network.Concurrency))
	}
	if err := a.Tuning.Optimizer.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Tuning.Hash.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errInvalidInput, errors.Join(errs...))
	}
	return nil
}

// loadTuning overlays the YAML file at path onto t. Keys missing from the
// file keep their current values.
func loadTuning(path string, t *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning config: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("%w: parse tuning config: %v", errInvalidInput, err)
	}
	return nil
}
