package audiotoolbox

import (
	"io"
	"log/slog"
	"testing"
)

func TestParseVolumeDetect(t *testing.T) {
	stderr := `[Parsed_volumedetect_0 @ 0x1] n_samples: 1234
[Parsed_volumedetect_0 @ 0x1] mean_volume: -23.4 dB
[Parsed_volumedetect_0 @ 0x1] max_volume: -3.2 dB
`
	res := parseVolumeDetect(stderr)
	if res.MaxVolumeDB != -3.2 {
		t.Errorf("MaxVolumeDB = %v, want -3.2", res.MaxVolumeDB)
	}
	if res.MeanVolumeDB != -23.4 {
		t.Errorf("MeanVolumeDB = %v, want -23.4", res.MeanVolumeDB)
	}
}

func TestParseLoudnormJSON(t *testing.T) {
	stderr := `some preamble
[Parsed_loudnorm_1 @ 0x1]
{
	"input_i" : "-27.61",
	"input_tp" : "-4.01",
	"input_lra" : "6.50",
	"input_thresh" : "-38.21",
	"target_offset" : "0.70"
}
`
	m, err := parseLoudnormJSON(stderr)
	if err != nil {
		t.Fatalf("parseLoudnormJSON: %v", err)
	}
	if m.InputI != -27.61 {
		t.Errorf("InputI = %v, want -27.61", m.InputI)
	}
	if m.InputTP != -4.01 {
		t.Errorf("InputTP = %v, want -4.01", m.InputTP)
	}
}

func TestParseLoudnormJSONMissingBlock(t *testing.T) {
	if _, err := parseLoudnormJSON("no json here"); err == nil {
		t.Fatal("expected error for missing measurement block")
	}
}

func TestLogWriterBuffersPartialLines(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := newLogWriter(discard, "job-1", "stderr")
	n, err := w.Write([]byte("first line\nsecond"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("first line\nsecond") {
		t.Errorf("n = %d", n)
	}
	if w.buf.String() != "second" {
		t.Errorf("buffered remainder = %q, want %q", w.buf.String(), "second")
	}
}
