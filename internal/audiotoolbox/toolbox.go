// Package audiotoolbox wraps the external ffmpeg/ffprobe binaries as an
// in-process, opaque collaborator: callers pass file paths and get back
// structured measurements, never a stream or a parsed container.
package audiotoolbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrToolUnavailable wraps a subprocess failure caused by the binary not
// being found on PATH, distinct from a tool running and failing. Callers
// that the spec says should skip rather than fail (peaks generation) use
// errors.Is against this sentinel.
var ErrToolUnavailable = errors.New("audiotoolbox: tool unavailable")

// Toolbox runs ffmpeg/ffprobe subprocesses. The zero value uses "ffmpeg"
// and "ffprobe" from PATH and discards subprocess logs.
type Toolbox struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
}

func (t Toolbox) ffmpeg() string {
	if t.FFmpegPath != "" {
		return t.FFmpegPath
	}
	return "ffmpeg"
}

func (t Toolbox) ffprobe() string {
	if t.FFprobePath != "" {
		return t.FFprobePath
	}
	return "ffprobe"
}

func (t Toolbox) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t Toolbox) run(ctx context.Context, jobLabel, bin string, args ...string) (stdout []byte, err error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = newLogWriter(t.logger(), jobLabel, filepath.Base(bin))
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w: %w", bin, jobLabel, ErrToolUnavailable, err)
		}
		return nil, fmt.Errorf("%s %s: %w", bin, jobLabel, err)
	}
	return out.Bytes(), nil
}

// logWriter line-buffers subprocess stderr and forwards each complete line
// to the toolbox logger, tagged with a job label and the stream name.
type logWriter struct {
	logger *slog.Logger
	job    string
	stream string
	buf    bytes.Buffer
}

func newLogWriter(logger *slog.Logger, job, stream string) *logWriter {
	return &logWriter{logger: logger, job: job, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: put it back for the next Write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		line = strings.TrimSpace(line)
		if line != "" {
			w.logger.Debug(line, "subprocess", w.stream, "job", w.job)
		}
	}
	return total, nil
}

// Extract produces a mono lossless file for one channel of a multi-channel
// input using ffmpeg's pan filter.
func (t Toolbox) Extract(ctx context.Context, input string, channelIndex int, output string) error {
	pan := fmt.Sprintf("pan=mono|c0=c%d", channelIndex)
	_, err := t.run(ctx, output, t.ffmpeg(), "-y", "-i", input, "-af", pan, "-c:a", "flac", output)
	return err
}

// Concatenate joins an ordered list of mono files (segment-number order)
// into a single lossless file via ffmpeg's concat demuxer.
func (t Toolbox) Concatenate(ctx context.Context, listPath, output, codec string) error {
	_, err := t.run(ctx, output, t.ffmpeg(), "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c:a", codec, output)
	return err
}

// AnalysisResult is the structured output of loudness/amplitude analysis.
type AnalysisResult struct {
	MaxVolumeDB           float64
	MeanVolumeDB          float64
	IntegratedLoudnessLUFS float64
	TruePeakDBTP          float64
	LoudnessRangeLU       float64
	IsQuiet               bool
}

// Analyze runs ffmpeg's volumedetect and loudnorm (first-pass) filters and
// folds the results into one measurement, flagging IsQuiet against
// quietThresholdDB.
func (t Toolbox) Analyze(ctx context.Context, input string, quietThresholdDB float64) (AnalysisResult, error) {
	cmd := exec.CommandContext(ctx, t.ffmpeg(), "-i", input,
		"-af", "volumedetect,loudnorm=print_format=json", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run() // ffmpeg with -f null exits non-zero on some builds even on success; parse regardless.

	res := parseVolumeDetect(stderr.String())
	loud, err := parseLoudnormJSON(stderr.String())
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("parse loudnorm analysis: %w", err)
	}
	res.IntegratedLoudnessLUFS = loud.InputI
	res.TruePeakDBTP = loud.InputTP
	res.LoudnessRangeLU = loud.InputLRA
	res.IsQuiet = res.MaxVolumeDB < quietThresholdDB
	return res, nil
}

func parseVolumeDetect(stderr string) AnalysisResult {
	var res AnalysisResult
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "max_volume:"):
			res.MaxVolumeDB = parseDBValue(line, "max_volume:")
		case strings.Contains(line, "mean_volume:"):
			res.MeanVolumeDB = parseDBValue(line, "mean_volume:")
		}
	}
	return res
}

func parseDBValue(line, marker string) float64 {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	rest = strings.TrimSuffix(rest, " dB")
	v, _ := strconv.ParseFloat(rest, 64)
	return v
}

type loudnormMeasurement struct {
	InputI      float64 `json:"input_i,string"`
	InputTP     float64 `json:"input_tp,string"`
	InputLRA    float64 `json:"input_lra,string"`
	InputThresh float64 `json:"input_thresh,string"`
	TargetOffset float64 `json:"target_offset,string"`
}

func parseLoudnormJSON(stderr string) (loudnormMeasurement, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start < 0 || end < start {
		return loudnormMeasurement{}, fmt.Errorf("no loudnorm measurement block found")
	}
	var m loudnormMeasurement
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &m); err != nil {
		return loudnormMeasurement{}, err
	}
	return m, nil
}

// LoudnessNormalizeResult reports the before/after integrated loudness of
// a two-pass loudnorm encode.
type LoudnessNormalizeResult struct {
	InputLUFS  float64
	OutputLUFS float64
}

// LoudnessNormalize applies ffmpeg's loudnorm filter in its second pass,
// using measured values from a prior Analyze call to avoid a redundant
// first pass.
func (t Toolbox) LoudnessNormalize(ctx context.Context, input, output string, targetLUFS, targetTruePeakDB, targetLRA, measuredI, measuredTP, measuredLRA float64) (LoudnessNormalizeResult, error) {
	filter := fmt.Sprintf(
		"loudnorm=I=%.1f:TP=%.1f:LRA=%.1f:measured_I=%.2f:measured_TP=%.2f:measured_LRA=%.2f:linear=true:print_format=json",
		targetLUFS, targetTruePeakDB, targetLRA, measuredI, measuredTP, measuredLRA)
	cmd := exec.CommandContext(ctx, t.ffmpeg(), "-y", "-i", input, "-af", filter, "-ar", "48000", output)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return LoudnessNormalizeResult{}, fmt.Errorf("loudness_normalize: %w", err)
	}
	loud, err := parseLoudnormJSON(stderr.String())
	if err != nil {
		return LoudnessNormalizeResult{InputLUFS: measuredI, OutputLUFS: targetLUFS}, nil
	}
	return LoudnessNormalizeResult{InputLUFS: measuredI, OutputLUFS: loud.InputI}, nil
}

// GainNormalize applies a flat linear gain with a true-peak limiter,
// used instead of two-pass loudnorm when the required gain is large.
func (t Toolbox) GainNormalize(ctx context.Context, input, output string, gainDB, truePeakLimitDB float64) error {
	filter := fmt.Sprintf("volume=%.2fdB,alimiter=limit=%.2fdB:level=disabled", gainDB, truePeakLimitDB)
	_, err := t.run(ctx, output, t.ffmpeg(), "-y", "-i", input, "-af", filter, output)
	return err
}

// EncodeMP3Options configures the lossy rendition produced by EncodeMP3.
type EncodeMP3Options struct {
	UseVBR    bool
	VBRQuality int // libmp3lame -q:a, 0 (best) .. 9 (worst)
	BitrateKbps int
	Filters    string
}

// EncodeMP3 transcodes input to an MP3 rendition per opts.
func (t Toolbox) EncodeMP3(ctx context.Context, input, output string, opts EncodeMP3Options) error {
	args := []string{"-y", "-i", input}
	if opts.Filters != "" {
		args = append(args, "-af", opts.Filters)
	}
	args = append(args, "-c:a", "libmp3lame")
	if opts.UseVBR {
		args = append(args, "-q:a", strconv.Itoa(opts.VBRQuality))
	} else {
		bitrate := opts.BitrateKbps
		if bitrate <= 0 {
			bitrate = 128
		}
		args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
	}
	args = append(args, output)
	_, err := t.run(ctx, output, t.ffmpeg(), args...)
	return err
}

// Peaks is the waveform-samples document emitted by Peaks, matching the
// shape audiowaveform/BBC-peaks-style tooling produces.
type Peaks struct {
	Length     int     `json:"length"`
	SampleRate int     `json:"sample_rate"`
	Data       []int   `json:"data"`
}

// Peaks runs audiowaveform on input, writes the JSON peaks document to
// output, and returns it parsed; a missing binary yields an error wrapping
// ErrToolUnavailable.
func (t Toolbox) Peaks(ctx context.Context, input, output string, pixelsPerSecond, bits int) (Peaks, error) {
	args := []string{
		"-i", input,
		"-o", output,
		"--pixels-per-second", strconv.Itoa(pixelsPerSecond),
		"--bits", strconv.Itoa(bits),
	}
	if _, err := t.run(ctx, output, "audiowaveform", args...); err != nil {
		return Peaks{}, err
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return Peaks{}, fmt.Errorf("read peaks output: %w", err)
	}
	var p Peaks
	if err := json.Unmarshal(data, &p); err != nil {
		return Peaks{}, fmt.Errorf("parse peaks output: %w", err)
	}
	return p, nil
}

// HLS segments input into a fixed-duration HLS rendition with a playlist.
func (t Toolbox) HLS(ctx context.Context, input, playlistPath, segmentPattern string, segmentDurationSeconds int, audioBitrateKbps int) error {
	args := []string{
		"-y", "-i", input,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", audioBitrateKbps),
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentDurationSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	}
	_, err := t.run(ctx, playlistPath, t.ffmpeg(), args...)
	return err
}

// Duration probes a file's duration in seconds via ffprobe.
func (t Toolbox) Duration(ctx context.Context, input string) (float64, error) {
	out, err := t.run(ctx, input, t.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	if err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", line, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("ffprobe produced no duration output")
}
