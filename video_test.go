package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes a shell script that logs its arguments, reports two frames
// on stdout and creates its last argument. Tests using it stay serial: exec of a
// freshly written file can fail with ETXTBSY while other tests fork.
func fakeFFmpeg(t *testing.T, fail bool) (path, callLog string) {
	t.Helper()
	if fail {
		return fakeFFmpegScript(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	}
	return fakeFFmpegScript(t, "echo frame=1\necho fps=30\necho frame=2\n")
}

// fakeFFmpegScript is fakeFFmpeg with a custom body. The script creates its
// last argument unless body exits first.
func fakeFFmpegScript(t *testing.T, body string) (path, callLog string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs a POSIX shell")
	}
	dir := t.TempDir()
	path = filepath.Join(dir, "ffmpeg")
	callLog = filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + callLog + "\n" +
		body +
		"for last; do :; done\n: > \"$last\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, callLog
}

func readCalls(t *testing.T, callLog string) []string {
	t.Helper()
	data, err := os.ReadFile(callLog)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestScanFrameProgress(t *testing.T) {
	t.Parallel()

	var frames []int
	err := scanFrameProgress(strings.NewReader("frame=5\nfps=1.0\n  frame= 7\nprogress=end\n"), func(f int) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7}, frames)

	frames = nil
	err = scanFrameProgress(strings.NewReader("frame=N/A\nframe=3\n"), func(f int) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, frames)
}

func TestRunDrainsOutputAfterBadProgressLine(t *testing.T) {
	// Well past a pipe buffer of output after the unparseable line.
	ffmpeg, _ := fakeFFmpegScript(t, "echo frame=N/A\n"+
		"i=0\nwhile [ $i -lt 20000 ]; do echo \"fps=30 speed=1.0x bitrate=N/A\"; i=$((i+1)); done\n"+
		"echo frame=4\n")
	var progress bytes.Buffer
	e := newVideoEncoder(defaultTuning().Video, newJSONProgress(&progress, 0))
	e.ffmpegPath = ffmpeg

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	out := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, e.run(ctx, t.TempDir(), 4, 100, []string{out}))
	assert.NoError(t, ctx.Err())
	assert.FileExists(t, out)
	assert.Contains(t, progress.String(), "100.0% rendered")
}

func TestEncoderArgs(t *testing.T) {
	t.Parallel()

	e := newVideoEncoder(VideoConfig{Framerate: 30, CRF: 20, Preset: "slow"}, quietProgress{})

	lapse := e.timelapseArgs("%d.opt.jpg", "/tmp/out.mp4")
	assert.Equal(t, []string{"-framerate", "30", "-pattern_type", "sequence", "-i", "%d.opt.jpg"}, lapse[:6])
	assert.Equal(t, "/tmp/out.mp4", lapse[len(lapse)-1])
	assert.Contains(t, strings.Join(lapse, " "), "-crf 20")
	assert.Contains(t, strings.Join(lapse, " "), "-preset slow")
	assert.Contains(t, strings.Join(lapse, " "), "-progress pipe:1")

	fast := strings.Join(e.smoothingArgs(minterpFast, "in.mp4", "out.mp4"), " ")
	assert.Contains(t, fast, "-filter_complex [0:v]minterpolate=fps=60,tblend=all_mode=average,framestep=2[out]")
	assert.Contains(t, fast, "-map [out]")

	good := strings.Join(e.smoothingArgs(minterpGood, "in.mp4", "out.mp4"), " ")
	assert.Contains(t, good, "mi_mode=mci:mc_mode=aobmc:vsbmc=1:fps=90")
	assert.True(t, strings.HasPrefix(good, "-i in.mp4 "))
}

func TestAssembleSkip(t *testing.T) {
	ffmpeg, callLog := fakeFFmpeg(t, false)
	var progress bytes.Buffer
	e := newVideoEncoder(defaultTuning().Video, newJSONProgress(&progress, 0))
	e.ffmpegPath = ffmpeg

	out := filepath.Join(t.TempDir(), "lapse.mp4")
	require.NoError(t, e.assemble(context.Background(), t.TempDir(), 2, false, minterpSkip, out))

	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(out), "lapse-original.mp4"))
	calls := readCalls(t, callLog)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "-i %d.jpg")
	assert.Contains(t, progress.String(), "Joining images into video sequence")
	assert.Contains(t, progress.String(), "100.0% rendered")
}

func TestAssembleGood(t *testing.T) {
	ffmpeg, callLog := fakeFFmpeg(t, false)
	e := newVideoEncoder(defaultTuning().Video, quietProgress{})
	e.ffmpegPath = ffmpeg

	out := filepath.Join(t.TempDir(), "lapse.mp4")
	require.NoError(t, e.assemble(context.Background(), t.TempDir(), 2, true, minterpGood, out))

	original := filepath.Join(filepath.Dir(out), "lapse-original.mp4")
	assert.FileExists(t, out)
	assert.FileExists(t, original)
	calls := readCalls(t, callLog)
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "-i %d.opt.jpg")
	assert.True(t, strings.HasPrefix(calls[1], "-i "+original))
	assert.Contains(t, calls[1], "fps=72")
}

func TestAssembleReportsFFmpegFailure(t *testing.T) {
	ffmpeg, _ := fakeFFmpeg(t, true)
	e := newVideoEncoder(defaultTuning().Video, quietProgress{})
	e.ffmpegPath = ffmpeg

	err := e.assemble(context.Background(), t.TempDir(), 2, false, minterpFast, filepath.Join(t.TempDir(), "x.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg command failed")
	assert.Contains(t, err.Error(), "Invalid data found")
}
