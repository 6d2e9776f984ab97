package channelpipeline

import (
	"context"
	"fmt"
	"sort"

	"audioreceiver/internal/blobstore"
	"audioreceiver/internal/channelgroup"
	"audioreceiver/internal/metadata"
	"audioreceiver/internal/models"
	"audioreceiver/internal/objectstore"
	"audioreceiver/internal/pipeline"

	"golang.org/x/sync/semaphore"
)

// prefetchFlacStep resolves every received segment that carries the target
// channel and makes sure its lossless file is present on local disk,
// downloading from the object store when the local copy has been purged.
type prefetchFlacStep struct {
	store       metadata.Store
	blobs       *blobstore.Store
	objects     *objectstore.Client
	concurrency int
}

func (s *prefetchFlacStep) Name() string { return "prefetch-flac" }

func (s *prefetchFlacStep) ShouldRun(sctx pipeline.StepContext, data pipeline.Data) bool {
	return true
}

func (s *prefetchFlacStep) Execute(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) pipeline.StepResult {
	segments, err := s.store.ListSegments(ctx, sctx.SessionID)
	if err != nil {
		return pipeline.Failure(fmt.Errorf("list segments: %w", err))
	}

	var fetches []SegmentFetch
	for _, seg := range segments {
		group, ok := channelgroup.Parse(seg.ChannelGroup)
		if !ok || !group.Contains(sctx.ChannelNumber) {
			continue
		}
		fetches = append(fetches, SegmentFetch{
			SegmentID:           seg.ID,
			SegmentNumber:       seg.SegmentNumber,
			ChannelGroup:        seg.ChannelGroup,
			ChannelIndexInGroup: group.Index(sctx.ChannelNumber),
			LocalPath:           seg.LocalPath,
		})
	}
	if len(fetches) == 0 {
		return pipeline.Skipped("no segments carry this channel")
	}
	sort.Slice(fetches, func(i, j int) bool { return fetches[i].SegmentNumber < fetches[j].SegmentNumber })

	segmentByID := make(map[int64]models.Segment, len(segments))
	for _, seg := range segments {
		segmentByID[seg.ID] = seg
	}

	sem := semaphore.NewWeighted(int64(s.concurrency))
	errs := make([]error, len(fetches))
	done := make(chan struct{}, len(fetches))
	for i := range fetches {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return pipeline.Failure(fmt.Errorf("prefetch acquire: %w", err))
		}
		go func() {
			defer sem.Release(1)
			errs[i] = s.ensureLocal(ctx, segmentByID[fetches[i].SegmentID])
			done <- struct{}{}
		}()
	}
	for range fetches {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return pipeline.Failure(fmt.Errorf("prefetch segment: %w", err))
		}
	}

	return pipeline.Success(pipeline.Data{KeySegmentFetches: fetches}, map[string]any{
		"segment_count": len(fetches),
	})
}

func (s *prefetchFlacStep) ensureLocal(ctx context.Context, seg models.Segment) error {
	if s.blobs.Exists(seg.LocalPath) {
		return nil
	}
	if s.objects == nil || seg.S3Key == nil {
		return fmt.Errorf("segment %d missing locally and no object-store copy available", seg.ID)
	}
	body, err := s.objects.Download(ctx, *seg.S3Key)
	if err != nil {
		return fmt.Errorf("download segment %d: %w", seg.ID, err)
	}
	if _, err := s.blobs.Write(seg.LocalPath, body); err != nil {
		return fmt.Errorf("write recovered segment %d: %w", seg.ID, err)
	}
	return nil
}

func (s *prefetchFlacStep) Cleanup(ctx context.Context, sctx pipeline.StepContext, data pipeline.Data) {}
