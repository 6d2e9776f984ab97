// Package channelpipeline implements the eleven-step default pipeline that
// turns a session's received segments into a per-channel MP3, peaks JSON,
// and HLS rendition, replicated to the object store.
package channelpipeline

// Config tunes thresholds, concurrency, and encode quality for the
// default channel pipeline.
type Config struct {
	GroupSize int // channels per segment container; design default 6

	PrefetchConcurrency int // bounded concurrency for segment downloads; default 4
	HLSUploadConcurrency int // bounded concurrency for HLS segment uploads; default 10

	QuietThresholdDB    float64 // max_volume_db below this => is_quiet
	SilenceThresholdDB  float64 // mean_volume_db below this => is_silent

	NormalizeEnabled    bool
	MinGainLU           float64 // required gain below this => skip normalization
	HighGainThresholdDB float64 // required gain above this => gain-mode instead of loudnorm
	TargetLUFS          float64
	TargetTruePeakDB    float64
	TargetLRA           float64

	MP3BitrateKbps     int
	MP3VBRQuality      int // used for normal channels when UseVBR
	MP3VBRQualityQuiet int // used for quiet channels when UseVBR (smaller files)
	MP3UseVBR          bool

	PeaksPixelsPerSecond int
	PeaksBits            int

	HLSSegmentDurationSeconds int
	HLSAudioBitrateKbps       int

	SegmentsPrefix string // object-store key prefix for raw segments
	PeaksPrefix    string
	HLSPrefix      string
}

// DefaultConfig returns the production thresholds and concurrency limits.
func DefaultConfig() Config {
	return Config{
		GroupSize:                 6,
		PrefetchConcurrency:       4,
		HLSUploadConcurrency:      10,
		QuietThresholdDB:          -50,
		SilenceThresholdDB:        -60,
		NormalizeEnabled:          true,
		MinGainLU:                1,
		HighGainThresholdDB:       20,
		TargetLUFS:                -16,
		TargetTruePeakDB:          -1.5,
		TargetLRA:                 11,
		MP3UseVBR:                 true,
		MP3VBRQuality:             2,
		MP3VBRQualityQuiet:        6,
		MP3BitrateKbps:            128,
		PeaksPixelsPerSecond:      100,
		PeaksBits:                 8,
		HLSSegmentDurationSeconds: 6,
		HLSAudioBitrateKbps:       128,
		SegmentsPrefix:            "segments/",
		PeaksPrefix:               "peaks/",
		HLSPrefix:                 "hls/",
	}
}
