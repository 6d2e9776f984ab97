package channelpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/pipeline"

	"golang.org/x/sync/semaphore"
)

// uploadMP3Step replicates the MP3 master to the object store, if one is
// configured. Sessions running without an object store keep the local
// rendition only; this step skips rather than fails.
type uploadMP3Step struct {
	blobs   *blobstore.Store
	objects *objectstore.Client
	cfg     Config
}

func (s *uploadMP3Step) Name() string { return "upload-mp3" }

func (s *uploadMP3Step) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if s.objects == nil {
		return false
	}
	if _, already := data[KeyMP3URL]; already {
		return false
	}
	_, ok := data[KeyMP3Path]
	return ok
}

func (s *uploadMP3Step) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	mp3Path, ok := data[KeyMP3Path].(string)
	if !ok || mp3Path == "" {
		return pipeline.Failure(fmt.Errorf("upload-mp3: no mp3 path in data"))
	}
	body, err := os.ReadFile(mp3Path)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("read mp3 for upload: %w", err))
	}
	key := fmt.Sprintf("%s%s/channel_%02d.mp3", s.cfg.SegmentsPrefix, sctx.SessionID, sctx.ChannelNumber)
	ref, err := s.objects.Upload(ctx, key, "audio/mpeg", body)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("upload mp3: %w", err))
	}
	return pipeline.Success(pipeline.Data{KeyMP3URL: ref.URL}, map[string]any{"object_key": ref.Key})
}

func (s *uploadMP3Step) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}

// uploadPeaksStep replicates the peaks JSON to the object store.
type uploadPeaksStep struct {
	objects *objectstore.Client
	cfg     Config
}

func (s *uploadPeaksStep) Name() string { return "upload-peaks" }

func (s *uploadPeaksStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if s.objects == nil {
		return false
	}
	if _, already := data[KeyPeaksURL]; already {
		return false
	}
	_, ok := data[KeyPeaksPath]
	return ok
}

func (s *uploadPeaksStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	peaksPath, ok := data[KeyPeaksPath].(string)
	if !ok || peaksPath == "" {
		return pipeline.Failure(fmt.Errorf("upload-peaks: no peaks path in data"))
	}
	body, err := os.ReadFile(peaksPath)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("read peaks for upload: %w", err))
	}
	key := fmt.Sprintf("%s%s/channel_%02d_peaks.json", s.cfg.PeaksPrefix, sctx.SessionID, sctx.ChannelNumber)
	ref, err := s.objects.Upload(ctx, key, "application/json", body)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("upload peaks: %w", err))
	}
	return pipeline.Success(pipeline.Data{KeyPeaksURL: ref.URL}, map[string]any{"object_key": ref.Key})
}

func (s *uploadPeaksStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}

// uploadHLSStep replicates the HLS playlist and its segment files to the
// object store, bounding concurrent segment uploads with a semaphore since
// an HLS rendition can have dozens of small files.
type uploadHLSStep struct {
	objects     *objectstore.Client
	cfg         Config
	concurrency int
}

func (s *uploadHLSStep) Name() string { return "upload-hls" }

func (s *uploadHLSStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	if s.objects == nil {
		return false
	}
	if _, already := data[KeyHLSURL]; already {
		return false
	}
	_, ok := data[KeyHLSPlaylist]
	return ok
}

func (s *uploadHLSStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	playlist, ok := data[KeyHLSPlaylist].(string)
	if !ok || playlist == "" {
		return pipeline.Failure(fmt.Errorf("upload-hls: no playlist path in data"))
	}
	segments, _ := data[KeyHLSSegments].([]string)

	sem := semaphore.NewWeighted(int64(s.concurrency))
	errs := make([]error, len(segments))
	done := make(chan struct{}, len(segments))
	for i := range segments {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return pipeline.Failure(fmt.Errorf("upload-hls acquire: %w", err))
		}
		go func() {
			defer sem.Release(1)
			errs[i] = s.uploadSegment(ctx, sctx, segments[i])
			done <- struct{}{}
		}()
	}
	for range segments {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return pipeline.Failure(fmt.Errorf("upload hls segment: %w", err))
		}
	}

	playlistBody, err := os.ReadFile(playlist)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("read hls playlist for upload: %w", err))
	}
	key := fmt.Sprintf("%s%s/channel_%02d.m3u8", s.cfg.HLSPrefix, sctx.SessionID, sctx.ChannelNumber)
	ref, err := s.objects.Upload(ctx, key, "application/vnd.apple.mpegurl", playlistBody)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("upload hls playlist: %w", err))
	}

	return pipeline.Success(pipeline.Data{KeyHLSURL: ref.URL}, map[string]any{
		"object_key":     ref.Key,
		"segment_count":  len(segments),
	})
}

func (s *uploadHLSStep) uploadSegment(ctx context.Context, sctx pipeline.StepContext, localPath string) error {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read hls segment: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s", s.cfg.HLSPrefix, sctx.SessionID, filepath.Base(localPath))
	if _, err := s.objects.Upload(ctx, key, "video/mp2t", body); err != nil {
		return fmt.Errorf("upload hls segment %s: %w", localPath, err)
	}
	return nil
}

func (s *uploadHLSStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
