package channelpipeline

import (
	"log/slog"

	"audioreceiver/internal/audiotoolbox"
	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/pipeline"
)

// Deps collects the collaborators every default-pipeline step needs. Objects
// may be nil, meaning the deployment runs with local storage only; every
// upload-* step treats a nil Objects as "skip".
type Deps struct {
	Store   metadata.Store
	Blobs   *blobstore.Store
	Objects *objectstore.Client
	Tools   audiotoolbox.Toolbox
	Logger  *slog.Logger
}

// BuildSteps returns the default channel pipeline in execution order:
// prefetch the lossless source, extract the channel, join its segments,
// measure loudness, normalize, encode the lossy master, derive peaks and
// HLS, then replicate every rendition to the object store.
func BuildSteps(deps Deps, cfg Config) []pipeline.Step {
	return buildAllSteps(deps, cfg)
}

func buildAllSteps(deps Deps, cfg Config) []pipeline.Step {
	prefetchConcurrency := cfg.PrefetchConcurrency
	if prefetchConcurrency <= 0 {
		prefetchConcurrency = 1
	}
	hlsConcurrency := cfg.HLSUploadConcurrency
	if hlsConcurrency <= 0 {
		hlsConcurrency = 1
	}

	return []pipeline.Step{
		&prefetchFlacStep{store: deps.Store, blobs: deps.Blobs, objects: deps.Objects, concurrency: prefetchConcurrency},
		&extractChannelStep{blobs: deps.Blobs, tools: deps.Tools},
		&concatenateStep{blobs: deps.Blobs, tools: deps.Tools},
		&analyzeAudioStep{tools: deps.Tools, cfg: cfg},
		&normalizeAudioStep{blobs: deps.Blobs, tools: deps.Tools, cfg: cfg},
		&encodeMP3Step{blobs: deps.Blobs, tools: deps.Tools, cfg: cfg},
		&generatePeaksStep{blobs: deps.Blobs, tools: deps.Tools, cfg: cfg, logger: deps.Logger},
		&generateHLSStep{blobs: deps.Blobs, tools: deps.Tools, cfg: cfg},
		&uploadMP3Step{blobs: deps.Blobs, objects: deps.Objects, cfg: cfg},
		&uploadPeaksStep{objects: deps.Objects, cfg: cfg},
		&uploadHLSStep{objects: deps.Objects, cfg: cfg, concurrency: hlsConcurrency},
	}
}

// Variant narrows the default eleven-step pipeline to the subset a
// regeneration request needs: a full channel rerun, the lossless-to-MP3
// leg only, or the peaks+HLS leg only (both derived from an
// already-encoded MP3).
type Variant int

const (
	VariantFull Variant = iota
	VariantMP3Only
	VariantPeaksHLSOnly
)

// BuildVariantSteps returns the step subset for variant, in the same
// relative order BuildSteps would produce them.
func BuildVariantSteps(variant Variant, deps Deps, cfg Config) []pipeline.Step {
	all := buildAllSteps(deps, cfg)
	// all[0..10] = prefetch, extract, concatenate, analyze, normalize,
	// encode-mp3, generate-peaks, generate-hls, upload-mp3, upload-peaks,
	// upload-hls.
	switch variant {
	case VariantMP3Only:
		return []pipeline.Step{all[0], all[1], all[2], all[3], all[4], all[5], all[8]}
	case VariantPeaksHLSOnly:
		return []pipeline.Step{all[6], all[7], all[9], all[10]}
	default:
		return all
	}
}

// SeedFromProcessedChannel primes the data bag a peaks/HLS-only rerun needs:
// the existing MP3 path and silence flag, so generate-peaks/generate-hls can
// run without repeating prefetch/extract/concatenate/analyze/encode.
func SeedFromProcessedChannel(mp3Path string, isSilent bool) pipeline.Data {
	return pipeline.Data{
		KeyMP3Path:  mp3Path,
		KeyIsSilent: isSilent,
	}
}
