package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PGStore persists playlist snapshots in Postgres (tables from db migrations).
type PGStore struct{ DB *sql.DB }

// Save replaces the stored snapshot with st in one transaction.
func (s *PGStore) Save(ctx context.Context, st State) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("playlist save rollback failed", slog.Any("err", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM playlist_items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for i, it := range st.Items {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO playlist_items (position, id, media_id, title, channel, duration, thumbnail, url, added_by, added_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			i, it.ID, it.MediaID, it.Title, it.Channel, it.Duration, it.Thumbnail, it.URL, it.AddedBy, it.AddedAt); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	var cur sql.NullInt64
	if st.CurrentIndex != nil {
		cur = sql.NullInt64{Int64: int64(*st.CurrentIndex), Valid: true}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO playlist_state (id, current_index, is_playing, autoplay, updated_at)
		 VALUES (1,$1,$2,$3,NOW())
		 ON CONFLICT (id) DO UPDATE SET current_index=EXCLUDED.current_index, is_playing=EXCLUDED.is_playing, autoplay=EXCLUDED.autoplay, updated_at=NOW()`,
		cur, st.IsPlaying, st.Autoplay); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. found is false when nothing was saved yet.
func (s *PGStore) Load(ctx context.Context) (st State, found bool, err error) {
	var cur sql.NullInt64
	err = s.DB.QueryRowContext(ctx, `SELECT current_index, is_playing, autoplay FROM playlist_state WHERE id=1`).
		Scan(&cur, &st.IsPlaying, &st.Autoplay)
	if errors.Is(err, sql.ErrNoRows) {
		return State{Autoplay: true}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load state: %w", err)
	}
	if cur.Valid {
		c := int(cur.Int64)
		st.CurrentIndex = &c
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, media_id, title, channel, duration, thumbnail, url, added_by, added_at FROM playlist_items ORDER BY position ASC`)
	if err != nil {
		return State{}, false, fmt.Errorf("load items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.MediaID, &it.Title, &it.Channel, &it.Duration, &it.Thumbnail, &it.URL, &it.AddedBy, &it.AddedAt); err != nil {
			return State{}, false, fmt.Errorf("scan item: %w", err)
		}
		st.Items = append(st.Items, it)
	}
	if err := rows.Err(); err != nil {
		return State{}, false, fmt.Errorf("iterate items: %w", err)
	}
	return st, true, nil
}
