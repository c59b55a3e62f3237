package scorestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GameRecord is the local copy of one completed game payload.
type GameRecord struct {
	ID          int64
	LaneID      string
	GameJSON    string
	CompletedAt time.Time
}

type GameRepo struct {
	db *sql.DB
}

func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

func (r *GameRepo) Insert(ctx context.Context, rec GameRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO games(lane_id, game_json, completed_at)
		VALUES(?, ?, ?)
	`, rec.LaneID, rec.GameJSON, toUnixMillis(rec.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get game id: %w", err)
	}

	return id, nil
}

func (r *GameRepo) ListRecent(ctx context.Context, limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lane_id, game_json, completed_at
		FROM games
		ORDER BY completed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent games: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []GameRecord
	for rows.Next() {
		var (
			rec         GameRecord
			completedMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.LaneID, &rec.GameJSON, &completedMs); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		rec.CompletedAt = fromUnixMillis(completedMs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}

	return out, nil
}
