package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cronostudio/internal/model"
)

// ContentRepository backs the webhook-eligible resources: channels, videos,
// analytics snapshots and automation runs. These are the routes the
// service-or-owner guard protects.
type ContentRepository struct {
	db Querier
}

func NewContentRepository(db Querier) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) CreateChannel(ctx context.Context, ch model.Channel) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO channels (id, user_id, name, external_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.ID, ch.UserID, ch.Name, ch.ExternalID, ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

func (r *ContentRepository) ListChannels(ctx context.Context, userID string) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name, external_id, created_at, updated_at
		 FROM channels WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]model.Channel, 0)
	for rows.Next() {
		var ch model.Channel
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.Name, &ch.ExternalID, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *ContentRepository) FindChannel(ctx context.Context, id string, userID string) (model.Channel, error) {
	var ch model.Channel
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, external_id, created_at, updated_at
		 FROM channels WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&ch.ID, &ch.UserID, &ch.Name, &ch.ExternalID, &ch.CreatedAt, &ch.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Channel{}, model.ErrChannelNotFound
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("find channel: %w", err)
	}
	return ch, nil
}

func (r *ContentRepository) CreateVideo(ctx context.Context, v model.Video) error {
	// channel_id is nullable; an unassigned video stores NULL, not ''.
	var channelID *string
	if v.ChannelID != "" {
		channelID = &v.ChannelID
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO videos (id, user_id, channel_id, title, status, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.UserID, channelID, v.Title, v.Status, v.PublishedAt, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

func (r *ContentRepository) ListVideos(ctx context.Context, userID string) ([]model.Video, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, COALESCE(channel_id::text, ''), title, status, published_at, created_at, updated_at
		 FROM videos WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]model.Video, 0)
	for rows.Next() {
		var v model.Video
		if err := rows.Scan(&v.ID, &v.UserID, &v.ChannelID, &v.Title, &v.Status, &v.PublishedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (r *ContentRepository) FindVideo(ctx context.Context, id string, userID string) (model.Video, error) {
	var v model.Video
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, COALESCE(channel_id::text, ''), title, status, published_at, created_at, updated_at
		 FROM videos WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&v.ID, &v.UserID, &v.ChannelID, &v.Title, &v.Status, &v.PublishedAt, &v.CreatedAt, &v.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Video{}, model.ErrVideoNotFound
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("find video: %w", err)
	}
	return v, nil
}

func (r *ContentRepository) CreateSnapshot(ctx context.Context, s model.AnalyticsSnapshot) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO analytics_snapshots (id, user_id, video_id, views, likes, comments, captured_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.VideoID, s.Views, s.Likes, s.Comments, s.CapturedAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analytics snapshot: %w", err)
	}
	return nil
}

func (r *ContentRepository) ListSnapshots(ctx context.Context, userID string, videoID string) ([]model.AnalyticsSnapshot, error) {
	// The filter must reach Postgres as NULL-or-uuid; an untyped '' would
	// make $2 ambiguous between text and uuid during parse analysis.
	var videoFilter *string
	if videoID != "" {
		videoFilter = &videoID
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, video_id, views, likes, comments, captured_at, created_at
		 FROM analytics_snapshots
		 WHERE user_id = $1 AND ($2::uuid IS NULL OR video_id = $2::uuid)
		 ORDER BY captured_at DESC`, userID, videoFilter)
	if err != nil {
		return nil, fmt.Errorf("list analytics snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]model.AnalyticsSnapshot, 0)
	for rows.Next() {
		var s model.AnalyticsSnapshot
		if err := rows.Scan(&s.ID, &s.UserID, &s.VideoID, &s.Views, &s.Likes, &s.Comments, &s.CapturedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (r *ContentRepository) CreateRun(ctx context.Context, run model.AutomationRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automation_runs (id, user_id, workflow, status, detail, via_service, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.UserID, run.Workflow, run.Status, run.Detail, run.ViaService, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create automation run: %w", err)
	}
	return nil
}

func (r *ContentRepository) ListRuns(ctx context.Context, userID string) ([]model.AutomationRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, workflow, status, detail, via_service, created_at
		 FROM automation_runs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list automation runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.AutomationRun, 0)
	for rows.Next() {
		var run model.AutomationRun
		if err := rows.Scan(&run.ID, &run.UserID, &run.Workflow, &run.Status, &run.Detail, &run.ViaService, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan automation run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
