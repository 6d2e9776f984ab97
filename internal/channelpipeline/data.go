package channelpipeline

import (
	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/pipeline"
)

// Data-bag keys shared between the default pipeline's steps. Each step
// reads the keys its predecessors wrote and declares its own output keys.
const (
	KeySegmentFetches = "segment_fetches" // []SegmentFetch, written by prefetch-flac
	KeyMonoPaths      = "mono_paths"      // []string, written by extract-channel
	KeyConcatPath     = "concat_path"     // string, written by concatenate
	KeyAnalysis       = "analysis"        // audiotoolbox.AnalysisResult, written by analyze-audio
	KeyIsSilent       = "is_silent"       // bool, written by analyze-audio
	KeyNormalizedPath = "normalized_path" // string, written by normalize-audio (absent if skipped)
	KeyRenderPath     = "render_path"     // string, the input to encode-mp3 (normalized or concatenated)
	KeyMP3Path        = "mp3_path"        // string, written by encode-mp3
	KeyDurationSecs   = "duration_seconds"// float64, written by encode-mp3
	KeyPeaksPath      = "peaks_path"      // string, written by generate-peaks
	KeyHLSPlaylist    = "hls_playlist_path" // string, written by generate-hls
	KeyHLSSegments    = "hls_segment_paths" // []string, written by generate-hls
	KeyMP3URL         = "mp3_url"         // string, written by upload-mp3
	KeyPeaksURL       = "peaks_url"       // string, written by upload-peaks
	KeyHLSURL         = "hls_url"         // string, written by upload-hls
)

// SegmentFetch is one entry of prefetch-flac's output: a segment file that
// carries channel c, plus c's index within that segment's channel group.
type SegmentFetch struct {
	SegmentID         int64  `json:"segmentId"`
	SegmentNumber     int    `json:"segmentNumber"`
	ChannelGroup      string `json:"channelGroup"`
	ChannelIndexInGroup int  `json:"channelIndexInGroup"`
	LocalPath         string `json:"localPath"`
}

func analysisFromData(data pipeline.Data) (audiotoolbox.AnalysisResult, bool) {
	v, ok := data[KeyAnalysis]
	if !ok {
		return audiotoolbox.AnalysisResult{}, false
	}
	res, ok := v.(audiotoolbox.AnalysisResult)
	return res, ok
}

func isSilentFromData(data pipeline.Data) bool {
	v, _ := data[KeyIsSilent].(bool)
	return v
}
