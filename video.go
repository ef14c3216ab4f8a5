package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	minterpSkip = "skip"
	minterpFast = "fast"
	minterpGood = "good"

	frameSize = "640x480"
)

// videoEncoder drives ffmpeg. Frame progress is read from ffmpeg's
// "-progress pipe:1" output.
type videoEncoder struct {
	ffmpegPath string
	cfg        VideoConfig
	reporter   progressReporter
}

func newVideoEncoder(cfg VideoConfig, reporter progressReporter) *videoEncoder {
	return &videoEncoder{ffmpegPath: "ffmpeg", cfg: cfg, reporter: reporter}
}

// run executes ffmpeg in workDir. Each reported frame n becomes a progress
// message of scale*n/total percent.
func (e *videoEncoder) run(ctx context.Context, workDir string, total int, scale float64, args []string) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	if err := scanFrameProgress(stdout, func(frame int) {
		e.reporter.Message(fmt.Sprintf("%.1f%% rendered", scale*float64(frame)/float64(max(1, total))))
	}); err != nil {
		log.Printf("Stopped reading ffmpeg progress: %v", err)
	}
	// ffmpeg blocks on a full pipe, so whatever the scanner left must be read.
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg command failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// scanFrameProgress calls onFrame for every "frame=N" line in r. Lines with
// an unparseable frame number are logged and skipped.
func scanFrameProgress(r io.Reader, onFrame func(int)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, ok := strings.CutPrefix(line, "frame=")
		if !ok {
			continue
		}
		frame, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			log.Printf("Skipping ffmpeg progress line %q: %v", line, err)
			continue
		}
		onFrame(frame)
	}
	return scanner.Err()
}

func (e *videoEncoder) encodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-crf", strconv.Itoa(e.cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-preset", e.cfg.Preset,
		"-movflags", "faststart",
		"-progress", "pipe:1",
		"-y",
	}
}

// timelapseArgs joins numbered frames matching pattern into a video.
func (e *videoEncoder) timelapseArgs(pattern, outFile string) []string {
	args := []string{
		"-framerate", strconv.Itoa(e.cfg.Framerate),
		"-pattern_type", "sequence",
		"-i", pattern,
		"-s:v", frameSize,
	}
	args = append(args, e.encodeArgs()...)
	return append(args, outFile)
}

// smoothingArgs applies the motion filter for mode to inFile.
func (e *videoEncoder) smoothingArgs(mode, inFile, outFile string) []string {
	var filter []string
	switch mode {
	case minterpFast:
		filter = []string{"-filter_complex", fmt.Sprintf("[0:v]minterpolate=fps=%d,tblend=all_mode=average,framestep=2[out]", 2*e.cfg.Framerate), "-map", "[out]"}
	default:
		filter = []string{"-filter:v", fmt.Sprintf("minterpolate='mi_mode=mci:mc_mode=aobmc:vsbmc=1:fps=%d'", 3*e.cfg.Framerate)}
	}
	args := append([]string{"-i", inFile}, filter...)
	args = append(args, e.encodeArgs()...)
	return append(args, outFile)
}

// assemble turns the frames in dir into outFile. Frames are named
// {i}.opt.jpg when optimized is set, {i}.jpg otherwise. mode picks the
// smoothing pass applied afterwards.
func (e *videoEncoder) assemble(ctx context.Context, dir string, frames int, optimized bool, mode, outFile string) error {
	pattern := "%d.jpg"
	if optimized {
		pattern = "%d.opt.jpg"
	}
	// outFile may be relative to the caller's directory while ffmpeg runs in dir.
	outFile, err := filepath.Abs(outFile)
	if err != nil {
		return err
	}
	original := strings.TrimSuffix(outFile, ".mp4") + "-original.mp4"

	e.reporter.Stage("Joining images into video sequence")
	if err := e.run(ctx, dir, frames, 100, e.timelapseArgs(pattern, original)); err != nil {
		return err
	}

	switch mode {
	case minterpSkip:
		if err := os.Rename(original, outFile); err != nil {
			return fmt.Errorf("could not rename video file: %w", err)
		}
		return nil
	case minterpFast:
		e.reporter.Stage("Blending frames to apply blur")
		return e.run(ctx, dir, frames, 100, e.smoothingArgs(mode, original, outFile))
	default:
		e.reporter.Stage("Interpolating motion to apply blur")
		// Interpolation triples the frame count.
		return e.run(ctx, dir, frames, 33.3, e.smoothingArgs(mode, original, outFile))
	}
}
