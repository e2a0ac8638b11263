package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/trendsieve/internal/model"
)

// hackerNewsAPIBase はHacker News Firebase APIのデフォルトベースURL。
const hackerNewsAPIBase = "https://hacker-news.firebaseio.com/v0"

// defaultHNMaxConcurrent は個別アイテム取得の同時実行数の上限。
const defaultHNMaxConcurrent = 8

// hnItem はHacker News APIのアイテムレスポンス。
type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
}

// HackerNewsSource はHacker NewsのTop Storiesからアイテムを収集する。
// ストーリーIDの一覧を取得したあと、個別アイテムを並行取得する。
// 取得結果はTop Storiesのランキング順を維持し、
// 失敗したアイテムとstory以外のアイテムは順序を詰めて除外される。
type HackerNewsSource struct {
	baseURL       string // テストで差し替えるためフィールドに持つ
	client        *http.Client
	maxConcurrent int
}

// NewHackerNewsSource はHackerNewsSourceの新しいインスタンスを生成する。
func NewHackerNewsSource(timeout time.Duration) *HackerNewsSource {
	return &HackerNewsSource{
		baseURL:       hackerNewsAPIBase,
		client:        &http.Client{Timeout: timeout},
		maxConcurrent: defaultHNMaxConcurrent,
	}
}

// Name は収集元の識別子を返す。
func (s *HackerNewsSource) Name() model.Source {
	return model.SourceHackerNews
}

// Fetch はTop Storiesから最大limit件のアイテムを取得する。
func (s *HackerNewsSource) Fetch(ctx context.Context, limit int) ([]model.TrendItem, error) {
	ids, err := s.fetchTopStoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	// セマフォで同時実行数を制限しつつ個別アイテムを並行取得する。
	// インデックス付きスライスに書き込むことでランキング順を保存する。
	fetched := make([]*hnItem, len(ids))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, itemID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item, err := s.fetchItem(ctx, itemID)
			if err != nil {
				slog.Warn("HNアイテムの取得に失敗",
					slog.Int64("item_id", itemID),
					slog.String("error", err.Error()),
				)
				return
			}
			fetched[idx] = item
		}(i, id)
	}
	wg.Wait()

	var items []model.TrendItem
	for _, item := range fetched {
		// 取得失敗およびstory以外（comment, job等）はスキップ
		if item == nil || item.Type != "story" {
			continue
		}

		// 外部URLを持たないストーリー（Ask HN等）は議論ページにフォールバック
		itemURL := item.URL
		if itemURL == "" {
			itemURL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", item.ID)
		}

		items = append(items, model.TrendItem{
			Source:   model.SourceHackerNews,
			SourceID: fmt.Sprintf("%d", item.ID),
			Title:    item.Title,
			URL:      itemURL,
			Metadata: map[string]any{
				"points":   item.Score,
				"comments": item.Descendants,
				"author":   item.By,
				"time":     item.Time,
			},
		})
	}

	return items, nil
}

// fetchTopStoryIDs はTop StoriesのID一覧を取得する。
func (s *HackerNewsSource) fetchTopStoryIDs(ctx context.Context) ([]int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/topstories.json", nil)
	if err != nil {
		return nil, fmt.Errorf("Top Storiesのリクエスト生成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Trendsieve/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Top Storiesの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Top StoriesがHTTP %dを返しました", resp.StatusCode)
	}

	var ids []int64
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("Top Storiesのデコードに失敗しました: %w", err)
	}

	return ids, nil
}

// fetchItem は個別アイテムを取得する。
func (s *HackerNewsSource) fetchItem(ctx context.Context, itemID int64) (*hnItem, error) {
	url := fmt.Sprintf("%s/item/%d.json", s.baseURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Trendsieve/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var item hnItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, err
	}
	// 削除済みアイテムはnullとしてデコードされIDが0になる
	if item.ID == 0 {
		return nil, fmt.Errorf("アイテムが存在しません")
	}

	return &item, nil
}

var _ Source = (*HackerNewsSource)(nil)
