package notion

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/fuzzy"
	"github.com/hyperjump/autoscan/internal/metrics"
)

const (
	// RecentWindow is how many of the newest pages are scanned for a match.
	RecentWindow = 100
	// MatchThreshold is the lowest title similarity treated as the same item.
	MatchThreshold = 0.5
)

// Action is what an upsert did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// UpsertResult reports the write and, for updates, the match score.
type UpsertResult struct {
	Action Action  `json:"action"`
	Score  float64 `json:"score,omitempty"`
	Page   *Page   `json:"-"`
}

// PageAPI is the part of the Notion API the upserter needs.
type PageAPI interface {
	QueryRecent(ctx context.Context, databaseID string, limit int) ([]Page, error)
	CreatePage(ctx context.Context, databaseID string, props Properties, children []json.RawMessage) (*Page, error)
	UpdatePage(ctx context.Context, pageID string, props Properties) (*Page, error)
}

// Upserter writes items, updating the closest existing page when its title
// is similar enough. The read and the write are not atomic: two concurrent
// upserts of the same item may both insert.
type Upserter struct {
	api       PageAPI
	window    int
	threshold float64
	logger    *zap.Logger
}

// NewUpserter returns an Upserter with the default window and threshold.
func NewUpserter(api PageAPI, logger *zap.Logger) *Upserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{api: api, window: RecentWindow, threshold: MatchThreshold, logger: logger}
}

// Match is the best scoring existing page.
type Match struct {
	Page  Page
	Score float64
}

// BestMatch scores every page title against title and returns the highest.
// ok is false when pages is empty.
func BestMatch(title string, pages []Page) (best Match, ok bool) {
	title = NormalizeTitle(title)
	best.Score = -1
	for _, p := range pages {
		score := fuzzy.Similarity(title, NormalizeTitle(PageTitle(p)))
		if score > best.Score {
			best = Match{Page: p, Score: score}
			ok = true
		}
	}
	return best, ok
}

// Upsert writes props into the database. Write errors are returned as is;
// a failed duplicate check only falls back to insert.
func (u *Upserter) Upsert(ctx context.Context, databaseID string, props Properties) (*UpsertResult, error) {
	_, title, _ := OutgoingTitle(props)
	title = NormalizeTitle(title)

	if title != "" {
		pages, err := u.api.QueryRecent(ctx, databaseID, u.window)
		if err != nil {
			u.logger.Warn("duplicate check failed, inserting", zap.String("database_id", databaseID), zap.Error(err))
		} else if best, ok := BestMatch(title, pages); ok && best.Score >= u.threshold {
			u.logger.Debug("updating similar page",
				zap.String("title", title),
				zap.String("page_id", best.Page.ID),
				zap.Float64("score", best.Score))
			page, err := u.api.UpdatePage(ctx, best.Page.ID, props)
			if err != nil {
				metrics.IncrementNotionUpsert("failed")
				return nil, err
			}
			metrics.IncrementNotionUpsert(string(ActionUpdated))
			return &UpsertResult{Action: ActionUpdated, Score: best.Score, Page: page}, nil
		}
	}

	page, err := u.api.CreatePage(ctx, databaseID, props, nil)
	if err != nil {
		metrics.IncrementNotionUpsert("failed")
		return nil, err
	}
	metrics.IncrementNotionUpsert(string(ActionCreated))
	return &UpsertResult{Action: ActionCreated, Page: page}, nil
}

// IsAPIError reports whether err carries a Notion response.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
