// Package pipeline はトレンド収集パイプラインのオーケストレーションを提供する。
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/trendsieve/internal/metrics"
	"github.com/hitoshi/trendsieve/internal/model"
	"github.com/hitoshi/trendsieve/internal/source"
)

// Enricher はGitHubリポジトリの二次メタデータ取得のインターフェース。
type Enricher interface {
	EnrichAll(ctx context.Context, repoNames []string) map[string]model.Enrichment
}

// Filter は関連性フィルタリングのインターフェース。
type Filter interface {
	Filter(ctx context.Context, items []model.TrendItem, fc model.FilterContext) ([]model.TrendItem, error)
}

// Store はUPSERTと新規判定のインターフェース。
type Store interface {
	Configured() bool
	Upsert(ctx context.Context, items []model.TrendItem) ([]model.TrendItem, error)
}

// Notifier は通知配信のインターフェース。
type Notifier interface {
	Configured() bool
	Send(ctx context.Context, items []model.TrendItem) bool
}

// Summary は1回のパイプライン実行の結果を表す。
type Summary struct {
	Fetched  int
	Filtered int
	New      int
	Notified int
}

// Orchestrator はfetch → enrich → filter → upsert → notifyの
// パイプラインを統括する。各段の障害は実行全体を中断させず、
// どのバックエンドが未設定でも実行は最後まで完了する。
type Orchestrator struct {
	sources     []source.Source
	fetchLimits map[model.Source]int
	enricher    Enricher
	filter      Filter
	store       Store
	notifier    Notifier
	collector   metrics.MetricsCollector
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	sources []source.Source,
	fetchLimits map[model.Source]int,
	enricher Enricher,
	filter Filter,
	store Store,
	notifier Notifier,
	collector metrics.MetricsCollector,
) *Orchestrator {
	return &Orchestrator{
		sources:     sources,
		fetchLimits: fetchLimits,
		enricher:    enricher,
		filter:      filter,
		store:       store,
		notifier:    notifier,
		collector:   collector,
	}
}

// RunOnce はパイプラインを1回実行し、各段の件数を返す。
func (o *Orchestrator) RunOnce(ctx context.Context) Summary {
	var summary Summary

	// 1. 全収集元からフェッチ。収集元単位の障害はログに記録して継続する。
	items := o.fetchAll(ctx)
	summary.Fetched = len(items)
	if len(items) == 0 {
		slog.Warn("収集されたアイテムがないため実行を終了")
		return summary
	}

	// 2. GitHubリポジトリのみREADME・ライセンスでエンリッチする
	fc := o.enrichGitHubItems(ctx, items)

	// 3. LLMで関連性フィルタリング。呼び出し失敗時は0件として継続する。
	filtered, err := o.filter.Filter(ctx, items, fc)
	if err != nil {
		slog.Error("フィルタリングに失敗", slog.String("error", err.Error()))
		filtered = nil
	}
	summary.Filtered = len(filtered)
	o.collector.RecordItemsFiltered(len(filtered))

	// 4. UPSERTで新規アイテムを判定する
	newItems, err := o.store.Upsert(ctx, filtered)
	if err != nil {
		slog.Error("UPSERT処理が中断された", slog.String("error", err.Error()))
	}
	summary.New = len(newItems)
	o.collector.RecordItemsNew(len(newItems))

	// 5. 通知対象を決定する。ストレージ未設定の場合は新規判定ができないため、
	//    フィルタ済みの全アイテムを通知対象とする（設定済みで新規0件とは区別される）。
	notifiable := newItems
	if !o.store.Configured() {
		notifiable = filtered
		slog.Info("ストレージ未設定のためフィルタ済み全アイテムを通知対象にする",
			slog.Int("count", len(notifiable)),
		)
	}

	if o.notifier.Send(ctx, notifiable) {
		summary.Notified = len(notifiable)
		o.collector.RecordNotificationSent()
	}

	slog.Info("パイプライン実行完了",
		slog.Int("fetched", summary.Fetched),
		slog.Int("filtered", summary.Filtered),
		slog.Int("new", summary.New),
		slog.Int("notified", summary.Notified),
	)

	return summary
}

// fetchAll は全収集元からアイテムを取得して連結する。
// 収集元全体の障害はその収集元をスキップするのみで、他の収集元は継続する。
func (o *Orchestrator) fetchAll(ctx context.Context) []model.TrendItem {
	var items []model.TrendItem

	for _, src := range o.sources {
		name := string(src.Name())
		limit := o.fetchLimits[src.Name()]

		start := time.Now()
		fetched, err := src.Fetch(ctx, limit)
		o.collector.RecordFetchLatency(name, time.Since(start))

		if err != nil {
			slog.Error("収集元のフェッチに失敗",
				slog.String("source", name),
				slog.String("error", err.Error()),
			)
			o.collector.RecordFetchFailure(name)
			continue
		}

		slog.Info("収集元のフェッチ完了",
			slog.String("source", name),
			slog.Int("count", len(fetched)),
		)
		o.collector.RecordItemsFetched(name, len(fetched))
		items = append(items, fetched...)
	}

	return items
}

// enrichGitHubItems はGitHub由来のアイテムのメタデータを取得し、
// フィルタリング用のコンテキストを組み立てる。
func (o *Orchestrator) enrichGitHubItems(ctx context.Context, items []model.TrendItem) model.FilterContext {
	fc := model.NewFilterContext()

	var repoNames []string
	for _, item := range items {
		if item.Source == model.SourceGitHub {
			repoNames = append(repoNames, item.SourceID)
		}
	}
	if len(repoNames) == 0 {
		return fc
	}

	enrichments := o.enricher.EnrichAll(ctx, repoNames)
	for name, e := range enrichments {
		if e.Readme != "" {
			fc.Readmes[name] = e.Readme
		}
		fc.Licenses[name] = e.License
		if e.IsOpenSource {
			fc.OpenSourceSet[name] = true
		}
	}

	slog.Info("エンリッチメント完了",
		slog.Int("repos", len(repoNames)),
		slog.Int("readmes", len(fc.Readmes)),
	)

	return fc
}
