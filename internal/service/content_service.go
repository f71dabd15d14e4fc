package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cronostudio/internal/model"
	"cronostudio/pkg/apierror"
)

// ContentStore is the persistence surface for channels, videos, analytics
// snapshots and automation runs. All reads are scoped to the owning user.
type ContentStore interface {
	CreateChannel(ctx context.Context, ch model.Channel) error
	ListChannels(ctx context.Context, userID string) ([]model.Channel, error)
	FindChannel(ctx context.Context, id string, userID string) (model.Channel, error)
	CreateVideo(ctx context.Context, v model.Video) error
	ListVideos(ctx context.Context, userID string) ([]model.Video, error)
	FindVideo(ctx context.Context, id string, userID string) (model.Video, error)
	CreateSnapshot(ctx context.Context, s model.AnalyticsSnapshot) error
	ListSnapshots(ctx context.Context, userID string, videoID string) ([]model.AnalyticsSnapshot, error)
	CreateRun(ctx context.Context, run model.AutomationRun) error
	ListRuns(ctx context.Context, userID string) ([]model.AutomationRun, error)
}

var videoStatuses = map[string]struct{}{
	"idea":      {},
	"scripting": {},
	"recording": {},
	"editing":   {},
	"scheduled": {},
	"published": {},
}

type ContentService struct {
	store ContentStore
}

func NewContentService(store ContentStore) *ContentService {
	return &ContentService{store: store}
}

func (s *ContentService) CreateChannel(ctx context.Context, userID string, req model.CreateChannelRequest) (model.Channel, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Channel{}, apierror.New("BAD_REQUEST", "channel name is required", "name", http.StatusBadRequest)
	}

	now := time.Now().UTC()
	channel := model.Channel{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		ExternalID: strings.TrimSpace(req.ExternalID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateChannel(ctx, channel); err != nil {
		return model.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return channel, nil
}

func (s *ContentService) ListChannels(ctx context.Context, userID string) ([]model.Channel, error) {
	channels, err := s.store.ListChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

func (s *ContentService) CreateVideo(ctx context.Context, userID string, req model.CreateVideoRequest) (model.Video, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.Video{}, apierror.New("BAD_REQUEST", "video title is required", "title", http.StatusBadRequest)
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = "idea"
	}
	if _, ok := videoStatuses[status]; !ok {
		return model.Video{}, apierror.New("BAD_REQUEST", "unknown video status", "status", http.StatusBadRequest)
	}

	channelID := strings.TrimSpace(req.ChannelID)
	if channelID != "" {
		// The channel must exist and belong to the same user.
		if _, err := s.store.FindChannel(ctx, channelID, userID); err != nil {
			return model.Video{}, err
		}
	}

	now := time.Now().UTC()
	video := model.Video{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChannelID: channelID,
		Title:     title,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == "published" {
		video.PublishedAt = &now
	}

	if err := s.store.CreateVideo(ctx, video); err != nil {
		return model.Video{}, fmt.Errorf("create video: %w", err)
	}
	return video, nil
}

func (s *ContentService) ListVideos(ctx context.Context, userID string) ([]model.Video, error) {
	videos, err := s.store.ListVideos(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// ReportAnalytics records a point-in-time metrics snapshot for a video the
// caller owns. captured_at accepts RFC 3339 and defaults to now.
func (s *ContentService) ReportAnalytics(ctx context.Context, userID string, req model.ReportAnalyticsRequest) (model.AnalyticsSnapshot, error) {
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		return model.AnalyticsSnapshot{}, apierror.New("BAD_REQUEST", "video_id is required", "video_id", http.StatusBadRequest)
	}
	if req.Views < 0 || req.Likes < 0 || req.Comments < 0 {
		return model.AnalyticsSnapshot{}, apierror.New("BAD_REQUEST", "metric counts cannot be negative", "", http.StatusBadRequest)
	}

	if _, err := s.store.FindVideo(ctx, videoID, userID); err != nil {
		return model.AnalyticsSnapshot{}, err
	}

	capturedAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.CapturedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return model.AnalyticsSnapshot{}, apierror.New("BAD_REQUEST", "captured_at must be RFC 3339", "captured_at", http.StatusBadRequest)
		}
		capturedAt = parsed.UTC()
	}

	snapshot := model.AnalyticsSnapshot{
		ID:         uuid.NewString(),
		UserID:     userID,
		VideoID:    videoID,
		Views:      req.Views,
		Likes:      req.Likes,
		Comments:   req.Comments,
		CapturedAt: capturedAt,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateSnapshot(ctx, snapshot); err != nil {
		return model.AnalyticsSnapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *ContentService) ListAnalytics(ctx context.Context, userID string, videoID string) ([]model.AnalyticsSnapshot, error) {
	snapshots, err := s.store.ListSnapshots(ctx, userID, strings.TrimSpace(videoID))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// ReportRun records one automation workflow execution. viaService marks
// rows written through the webhook-secret path.
func (s *ContentService) ReportRun(ctx context.Context, userID string, viaService bool, req model.ReportRunRequest) (model.AutomationRun, error) {
	workflow := strings.TrimSpace(req.Workflow)
	if workflow == "" {
		return model.AutomationRun{}, apierror.New("BAD_REQUEST", "workflow is required", "workflow", http.StatusBadRequest)
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "success", "failure", "partial":
	default:
		return model.AutomationRun{}, apierror.New("BAD_REQUEST", "status must be success, failure or partial", "status", http.StatusBadRequest)
	}

	run := model.AutomationRun{
		ID:         uuid.NewString(),
		UserID:     userID,
		Workflow:   workflow,
		Status:     status,
		Detail:     strings.TrimSpace(req.Detail),
		ViaService: viaService,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return model.AutomationRun{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *ContentService) ListRuns(ctx context.Context, userID string) ([]model.AutomationRun, error) {
	runs, err := s.store.ListRuns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
