// Package notify は新規トレンドアイテムの通知配信を提供する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/trendsieve/internal/model"
)

// maxItemsPerGroup はダイジェストの収集元グループごとの掲載上限。
const maxItemsPerGroup = 5

// SlackNotifier はSlack Incoming Webhookへダイジェストを送信する。
// Webhook URL未設定の場合は縮退モードとなり、送信せずにfalseを返す。
// 配信失敗はログに記録するのみで、エラーとして伝播させない。
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier はSlackNotifierの新しいインスタンスを生成する。
// webhookURLが空文字列の場合は通知未設定として扱う。
func NewSlackNotifier(webhookURL string, timeout time.Duration) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Configured は通知先が設定されているかを返す。
func (n *SlackNotifier) Configured() bool {
	return n.webhookURL != ""
}

// Send は新規アイテムのダイジェストを送信し、配信に成功したかを返す。
// 未設定または空のアイテム群の場合は送信せずfalseを返す。
func (n *SlackNotifier) Send(ctx context.Context, items []model.TrendItem) bool {
	if n.webhookURL == "" || len(items) == 0 {
		return false
	}

	message := formatDigest(items)

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		slog.Error("通知ペイロードの生成に失敗", slog.String("error", err.Error()))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("通知リクエストの生成に失敗", slog.String("error", err.Error()))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("Slack通知の送信に失敗", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Slack APIがエラーを返した", slog.Int("status", resp.StatusCode))
		return false
	}

	slog.Info("Slack通知を送信", slog.Int("items", len(items)))
	return true
}

// formatDigest はアイテム群を収集元ごとにグループ化したダイジェスト文字列を生成する。
// 各グループは最大5件、入力の順序を維持する。
func formatDigest(items []model.TrendItem) string {
	var githubItems, hnItems []model.TrendItem
	for _, item := range items {
		switch item.Source {
		case model.SourceGitHub:
			githubItems = append(githubItems, item)
		case model.SourceHackerNews:
			hnItems = append(hnItems, item)
		}
	}

	lines := []string{fmt.Sprintf("🔥 *今日のAIトレンド* (%d件)\n", len(items))}

	if len(githubItems) > 0 {
		lines = append(lines, "*📦 GitHub*")
		for _, item := range capItems(githubItems) {
			lines = append(lines, fmt.Sprintf("• <%s|%s> - %s%s",
				item.URL, item.Title, item.Summary, scoreSuffix(item)))
		}
		lines = append(lines, "")
	}

	if len(hnItems) > 0 {
		lines = append(lines, "*📰 Hacker News*")
		for _, item := range capItems(hnItems) {
			points := 0
			if p, ok := item.Metadata["points"].(int); ok {
				points = p
			}
			lines = append(lines, fmt.Sprintf("• <%s|%s> (%d points) - %s%s",
				item.URL, item.Title, points, item.Summary, scoreSuffix(item)))
		}
	}

	return strings.Join(lines, "\n")
}

// capItems はグループごとの掲載上限を適用する。
func capItems(items []model.TrendItem) []model.TrendItem {
	if len(items) > maxItemsPerGroup {
		return items[:maxItemsPerGroup]
	}
	return items
}

// scoreSuffix はスコア付きアイテムの末尾表記を返す。未評価の場合は空文字列。
func scoreSuffix(item model.TrendItem) string {
	if item.RelevanceScore == nil {
		return ""
	}
	return fmt.Sprintf(" ⭐ %d/10", *item.RelevanceScore)
}
