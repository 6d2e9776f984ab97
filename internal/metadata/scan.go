package metadata

import "audioreceiver/internal/models"

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query,
// once positioned via Next), and by the equivalent *sql.Row/*sql.Rows types
// from the SQLite backend — letting the same scan helper serve a single row
// or an iteration without duplicating the column list.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner, s *models.Session) error {
	return row.Scan(&s.ID, &s.Status, &s.SampleRate, &s.Channels, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt, &s.ProcessedAt)
}

func scanSegment(row rowScanner, seg *models.Segment) error {
	return row.Scan(&seg.ID, &seg.SessionID, &seg.SegmentNumber, &seg.ChannelGroup, &seg.LocalPath, &seg.S3Key, &seg.FileSize, &seg.ReceivedAt)
}

func scanProcessedChannel(row rowScanner, pc *models.ProcessedChannel) error {
	return row.Scan(&pc.ID, &pc.SessionID, &pc.ChannelNumber, &pc.LocalPath, &pc.S3Key, &pc.S3URL, &pc.HLSURL, &pc.PeaksURL, &pc.FileSize, &pc.DurationSeconds, &pc.IsQuiet, &pc.IsSilent, &pc.CreatedAt)
}

func scanPipelineRun(row rowScanner, run *models.PipelineRun) error {
	return row.Scan(&run.ID, &run.SessionID, &run.ChannelNumber, &run.StepName, &run.Status, &run.StartedAt, &run.CompletedAt, &run.DurationMs, &run.InputSnapshot, &run.OutputSnapshot, &run.ErrorMessage, &run.RetryCount, &run.CreatedAt)
}
