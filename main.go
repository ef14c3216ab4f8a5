package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
)

const previewSize = 1024

// --- Main Logic ---

func main() {
	args, err := parseArguments(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, args, os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// pipeline holds the collaborators of one run.
type pipeline struct {
	args     *Arguments
	out      io.Writer
	reporter progressReporter
	client   *streetViewClient
	encoder  *videoEncoder
}

func run(ctx context.Context, args *Arguments, out io.Writer) error {
	reporter := newProgressReporter(args)

	var cache *metadataCache
	if args.CacheDB != "" {
		c, err := openMetadataCache(args.CacheDB)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	}

	p := &pipeline{
		args:     args,
		out:      out,
		reporter: reporter,
		client:   newStreetViewClient(args.APIKey, args.Tuning.Network, cache, reporter),
		encoder:  newVideoEncoder(args.Tuning.Video, reporter),
	}
	return p.run(ctx)
}

func (p *pipeline) run(ctx context.Context) error {
	args := p.args

	var result *MetadataResult
	var err error
	if args.Resume != "" {
		result, err = readMetadataResult(args.Resume)
	} else {
		result, err = p.computeMetadata(ctx)
	}
	if err != nil {
		return err
	}

	if args.DryRun || args.PrintMetadata {
		if err := printMetadataResult(p.out, result, args.JSON); err != nil {
			return err
		}
	}
	if args.SaveMetadata != "" {
		if err := writeMetadataResult(args.SaveMetadata, result); err != nil {
			return err
		}
	}
	if args.Preview != "" {
		if err := savePreview(args.Preview, result, previewSize); err != nil {
			return err
		}
		log.Printf("Saved preview to %s", args.Preview)
	}
	if args.DryRun {
		return nil
	}

	viewpoints := result.Viewpoints
	if args.MaxFrames > 0 && len(viewpoints) > args.MaxFrames {
		viewpoints = viewpoints[:args.MaxFrames]
	}
	if len(viewpoints) == 0 {
		return fmt.Errorf("%w: no imagery found along the track", errInvalidInput)
	}

	outDir, err := p.outputDir()
	if err != nil {
		return err
	}

	p.reporter.Stage("Fetching Streetview images")
	if err := p.client.fetchImages(ctx, viewpoints, outDir); err != nil {
		return err
	}

	frames := len(viewpoints)
	if args.Optimize {
		frames, err = p.optimizeFrames(ctx, outDir, frames)
		if err != nil {
			return err
		}
	}

	if err := p.encoder.assemble(ctx, outDir, frames, args.Optimize, args.Minterp, args.OutputFile); err != nil {
		return err
	}
	if !args.JSON {
		fmt.Fprintf(p.out, "\nVideo saved to %s\n", args.OutputFile)
	}
	return nil
}

// computeMetadata reads the track, samples viewpoints, fetches their metadata
// and keeps one viewpoint per panorama.
func (p *pipeline) computeMetadata(ctx context.Context) (*MetadataResult, error) {
	args := p.args

	p.reporter.Stage("Parsing GPX data")
	p.reporter.Message("Reading track file")
	original, err := readTrack(args.InputPath)
	if err != nil {
		return nil, err
	}

	p.reporter.Message("Computing distance statistics")
	distances := segmentDistances(original)
	trackLength := floats.Sum(distances)
	expected := expectedFrameCount(args.FramesPerMile, trackLength)
	interp := args.Interp
	if interp == 0 {
		interp = defaultInterpFactor(expected, len(distances))
	}
	if !args.JSON {
		log.Printf("Distance is %.1f m with %d points, looking for %d frames", trackLength, len(original), expected)
	}

	p.reporter.Message("Finding viewpoints")
	viewpoints, total, err := sampleTrack(original, expected, interp)
	if err != nil {
		return nil, err
	}

	p.reporter.Stage("Fetching Streetview metadata")
	metadata, err := p.client.fetchMetadata(ctx, viewpoints)
	if err != nil {
		return nil, err
	}
	kept, keptMeta, errs, err := deduplicatePanoramas(viewpoints, metadata)
	if err != nil {
		return nil, err
	}

	result := newMetadataResult(total, kept, keptMeta, original, errs)
	if !args.JSON {
		log.Printf("Filtered %d viewpoints to %d panoramas, average error is %.2f m", len(viewpoints), len(kept), result.AverageError)
	}
	return result, nil
}

// optimizeFrames drops frames that break visual continuity and renames the
// survivors into a contiguous sequence. It returns the new frame count.
func (p *pipeline) optimizeFrames(ctx context.Context, dir string, frames int) (int, error) {
	p.reporter.Stage("Optimizing frame sequence")
	hashes, err := hashFrames(ctx, dir, frames, p.args.Tuning.Hash, p.args.Workers, p.reporter)
	if err != nil {
		return 0, err
	}
	order, err := optimizeSequence(hashes, p.args.Tuning.Optimizer)
	if err != nil {
		return 0, err
	}
	if err := reorderFrames(dir, order); err != nil {
		return 0, err
	}
	p.reporter.Message(fmt.Sprintf("Kept %d of %d frames", len(order), frames))
	return len(order), nil
}

func (p *pipeline) outputDir() (string, error) {
	dir := p.args.OutputDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "streetwarp-tmp-"+strconv.FormatInt(time.Now().Unix(), 10))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create output directory: %w", err)
	}
	if !p.args.JSON {
		log.Printf("Output dir is %s", dir)
	}
	return dir, nil
}
