package scorestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FrameRecord is the local copy of one frame payload forwarded to the
// server. Delivery to the server is at-most-once; this record survives
// either way.
type FrameRecord struct {
	ID         int64
	LaneID     string
	BowlerName string
	FrameNum   int
	FrameJSON  string
	SentAt     time.Time
}

type FrameRepo struct {
	db *sql.DB
}

func NewFrameRepo(db *sql.DB) *FrameRepo {
	return &FrameRepo{db: db}
}

func (r *FrameRepo) Insert(ctx context.Context, rec FrameRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO frames(lane_id, bowler_name, frame_num, frame_json, sent_at)
		VALUES(?, ?, ?, ?, ?)
	`, rec.LaneID, rec.BowlerName, rec.FrameNum, rec.FrameJSON, toUnixMillis(rec.SentAt))
	if err != nil {
		return 0, fmt.Errorf("insert frame: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get frame id: %w", err)
	}

	return id, nil
}

func (r *FrameRepo) ListByBowler(ctx context.Context, bowlerName string) ([]FrameRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lane_id, bowler_name, frame_num, frame_json, sent_at
		FROM frames
		WHERE bowler_name = ?
		ORDER BY frame_num ASC, sent_at ASC
	`, bowlerName)
	if err != nil {
		return nil, fmt.Errorf("list frames by bowler: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []FrameRecord
	for rows.Next() {
		var (
			rec    FrameRecord
			sentMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.LaneID, &rec.BowlerName, &rec.FrameNum, &rec.FrameJSON, &sentMs); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		rec.SentAt = fromUnixMillis(sentMs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}

	return out, nil
}
