package scorestore

import (
	"context"
	"log/slog"
	"time"
)

// Recorder adapts the repos to the lane link's recording hook, pushing
// writes through the async queue.
type Recorder struct {
	logger *slog.Logger
	laneID string
	frames *FrameRepo
	games  *GameRepo
	queue  *WriterQueue
}

func NewRecorder(logger *slog.Logger, laneID string, frames *FrameRepo, games *GameRepo, queue *WriterQueue) *Recorder {
	return &Recorder{
		logger: logger,
		laneID: laneID,
		frames: frames,
		games:  games,
		queue:  queue,
	}
}

func (r *Recorder) RecordFrame(bowlerName string, frameNum int, frameJSON string, at time.Time) {
	rec := FrameRecord{
		LaneID:     r.laneID,
		BowlerName: bowlerName,
		FrameNum:   frameNum,
		FrameJSON:  frameJSON,
		SentAt:     at,
	}
	r.queue.Enqueue("record frame", func(ctx context.Context) error {
		_, err := r.frames.Insert(ctx, rec)
		return err
	})
}

func (r *Recorder) RecordGame(gameJSON string, at time.Time) {
	rec := GameRecord{
		LaneID:      r.laneID,
		GameJSON:    gameJSON,
		CompletedAt: at,
	}
	r.queue.Enqueue("record game", func(ctx context.Context) error {
		_, err := r.games.Insert(ctx, rec)
		return err
	})
}
