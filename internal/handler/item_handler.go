// Package handler はダッシュボードAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/trendsieve/internal/middleware"
	"github.com/hitoshi/trendsieve/internal/model"
)

const (
	// defaultRecentDays は直近アイテム取得のデフォルト日数。
	defaultRecentDays = 7
	// defaultRecentLimit は直近アイテム取得のデフォルト件数。
	defaultRecentLimit = 100
	// maxRecentLimit は直近アイテム取得の最大件数。
	maxRecentLimit = 500
)

// TrendItemReader はアイテムハンドラーが必要とするストアのインターフェース。
type TrendItemReader interface {
	// Configured はストレージバックエンドが設定されているかを返す。
	Configured() bool
	// Recent は直近days日以内に初回観測されたアイテムをfirst_seen_at降順で返す。
	Recent(ctx context.Context, days, limit int, source model.Source) ([]*model.StoredItem, error)
}

// TrendItemHandler はトレンドアイテム参照のHTTPハンドラー。
type TrendItemHandler struct {
	store TrendItemReader
}

// NewTrendItemHandler はTrendItemHandlerを生成する。
func NewTrendItemHandler(store TrendItemReader) *TrendItemHandler {
	return &TrendItemHandler{store: store}
}

// --- レスポンス型 ---

// itemResponse はトレンドアイテムのレスポンス。
type itemResponse struct {
	ID               string         `json:"id"`
	Source           string         `json:"source"`
	SourceID         string         `json:"source_id"`
	Title            string         `json:"title"`
	URL              string         `json:"url"`
	Description      string         `json:"description,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	RelevanceScore   *int           `json:"relevance_score,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	MatchedInterests []string       `json:"matched_interests,omitempty"`
	CodeExample      string         `json:"code_example,omitempty"`
	License          string         `json:"license,omitempty"`
	IsOpenSource     bool           `json:"is_open_source"`
	FirstSeenAt      time.Time      `json:"first_seen_at"`
	LastSeenAt       time.Time      `json:"last_seen_at"`
}

// itemListResponse はアイテム一覧のレスポンス。
type itemListResponse struct {
	Items []itemResponse `json:"items"`
	Count int            `json:"count"`
}

// ListRecent は直近のトレンドアイテム一覧を取得する。
// GET /api/items/recent?days=7&limit=100&source=github
func (h *TrendItemHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if !h.store.Configured() {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnconfiguredError())
		return
	}

	days, err := parseIntParam(r, "days", defaultRecentDays, 1, 365)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("days", "1〜365の整数を指定してください"))
		return
	}

	limit, err := parseIntParam(r, "limit", defaultRecentLimit, 1, maxRecentLimit)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("limit", "1〜500の整数を指定してください"))
		return
	}

	src := model.Source(r.URL.Query().Get("source"))
	if src != "" && src != model.SourceGitHub && src != model.SourceHackerNews {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("source", "github または hackernews を指定してください"))
		return
	}

	items, err := h.store.Recent(r.Context(), days, limit, src)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	resp := itemListResponse{Items: make([]itemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	resp.Count = len(resp.Items)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// toItemResponse はStoredItemをレスポンス型に変換する。
func toItemResponse(item *model.StoredItem) itemResponse {
	metadata := item.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return itemResponse{
		ID:               item.ID,
		Source:           string(item.Source),
		SourceID:         item.SourceID,
		Title:            item.Title,
		URL:              item.URL,
		Description:      item.Description,
		Metadata:         metadata,
		RelevanceScore:   item.RelevanceScore,
		Summary:          item.Summary,
		MatchedInterests: item.MatchedInterests,
		CodeExample:      item.CodeExample,
		License:          item.License,
		IsOpenSource:     item.IsOpenSource,
		FirstSeenAt:      item.FirstSeenAt,
		LastSeenAt:       item.LastSeenAt,
	}
}

// parseIntParam はクエリパラメータを範囲検証付きの整数として解析する。
// パラメータが未指定の場合はデフォルト値を返す。
func parseIntParam(r *http.Request, name string, defaultValue, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, strconv.ErrRange
	}
	return n, nil
}
