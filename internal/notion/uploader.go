package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/models"
)

// API is the Notion surface used for batch uploads.
type API interface {
	PageAPI
	TitlePropertyName(ctx context.Context, databaseID string) (string, error)
}

// ErrNoItems is returned when a batch is empty.
var ErrNoItems = errors.New("notion: no items to upload")

// ItemResult is the outcome of one successful write.
type ItemResult struct {
	Index  int     `json:"index"`
	Title  string  `json:"title"`
	Action Action  `json:"action"`
	Score  float64 `json:"score,omitempty"`
	PageID string  `json:"page_id"`
	URL    string  `json:"url,omitempty"`
}

// BatchResult counts successes and collects per-item errors.
type BatchResult struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Total   int          `json:"total"`
	Results []ItemResult `json:"results"`
	Errors  []string     `json:"errors,omitempty"`
}

// Uploader writes a batch of items into one database.
type Uploader struct {
	api        API
	upserter   *Upserter
	databaseID string
	names      PropertyNames
	logger     *zap.Logger
}

// NewUploader returns an Uploader. When names.Title is empty the title
// column is read from the database schema on each upload.
func NewUploader(api API, databaseID string, names PropertyNames, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		api:        api,
		upserter:   NewUpserter(api, logger),
		databaseID: databaseID,
		names:      names,
		logger:     logger,
	}
}

func (u *Uploader) titleProperty(ctx context.Context) string {
	if u.names.Title != "" {
		return u.names.Title
	}
	name, err := u.api.TitlePropertyName(ctx, u.databaseID)
	if err != nil {
		u.logger.Warn("title property detection failed, using default", zap.String("database_id", u.databaseID), zap.Error(err))
		return DefaultTitleProperty
	}
	return name
}

// Upload writes every item. Structured items go through the upserter,
// simple items always create a page. Individual failures are collected;
// an error is returned only when nothing was written.
func (u *Uploader) Upload(ctx context.Context, items []models.ActionItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	names := u.names
	names.Title = u.titleProperty(ctx)

	res := &BatchResult{Total: len(items)}
	for i, item := range items {
		props := BuildProperties(item, names)
		var (
			up  *UpsertResult
			err error
		)
		if item.IsStructured() {
			up, err = u.upserter.Upsert(ctx, u.databaseID, props)
		} else {
			var page *Page
			page, err = u.api.CreatePage(ctx, u.databaseID, props, nil)
			if err == nil {
				up = &UpsertResult{Action: ActionCreated, Page: page}
			}
		}
		if err != nil {
			msg := err.Error()
			if apiErr, ok := IsAPIError(err); ok && apiErr.Message != "" {
				msg = apiErr.Message
			}
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: %s", i+1, msg))
			u.logger.Error("notion upload failed", zap.Int("item", i+1), zap.Error(err))
			continue
		}
		r := ItemResult{Index: i, Title: item.Title(), Action: up.Action, Score: up.Score}
		if up.Page != nil {
			r.PageID, r.URL = up.Page.ID, up.Page.URL
		}
		res.Results = append(res.Results, r)
	}
	res.Count = len(res.Results)
	res.Success = res.Count > 0
	if !res.Success {
		return res, fmt.Errorf("failed to upload any items: %s", strings.Join(res.Errors, "; "))
	}
	u.logger.Info("notion upload finished", zap.Int("count", res.Count), zap.Int("total", res.Total))
	return res, nil
}
