// Package store はトレンドアイテムの永続化と新規判定を提供する。
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/trendsieve/internal/model"
	"github.com/hitoshi/trendsieve/internal/repository"
)

// Store はトレンドアイテムのUPSERT処理と新規判定を提供する。
// (source, source_id)の同一性キーで既存レコードを検索し、
// 存在すれば可変属性とlast_seen_atを更新、存在しなければ新規挿入する。
// この読み取り→書き込みの2段階は単一のアトミックなUPSERTではないため、
// 同一キーに対する同時実行では両方が「未発見」を観測して二重挿入が起こりうる。
// 日次バッチという低頻度の実行形態を前提に許容しているトレードオフである。
type Store struct {
	repo repository.TrendItemRepository // nilの場合はバックエンド未設定
	now  func() time.Time
}

// New はStoreの新しいインスタンスを生成する。
// repoにnilを渡すとバックエンド未設定として扱われ、
// Upsertは何も永続化せず空の新規集合を返す縮退モードで動作する。
func New(repo repository.TrendItemRepository) *Store {
	return &Store{
		repo: repo,
		now:  time.Now,
	}
}

// Configured はストレージバックエンドが設定されているかを返す。
// オーケストレーターは「未設定（何も永続化されない）」と
// 「設定済みで新規0件」を区別するためにこのメソッドを使用する。
func (s *Store) Configured() bool {
	return s.repo != nil
}

// Upsert はアイテム群をUPSERTし、新規に観測されたアイテムのみを返す。
// バックエンド未設定の場合は何もせず空の新規集合を返す（エラーにはならない）。
// 個別アイテムの失敗はログに記録してスキップし、残りの処理を継続する。
// コンテキストがキャンセルされた場合のみ途中で打ち切ってエラーを返す。
func (s *Store) Upsert(ctx context.Context, items []model.TrendItem) ([]model.TrendItem, error) {
	if s.repo == nil || len(items) == 0 {
		return nil, nil
	}

	var newItems []model.TrendItem
	var updated int

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return newItems, err
		}

		now := s.now()

		existing, err := s.repo.FindBySourceID(ctx, item.Source, item.SourceID)
		if err != nil {
			slog.Error("アイテムの同一性判定でエラー",
				slog.String("source", string(item.Source)),
				slog.String("source_id", item.SourceID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if existing != nil {
			// 既存アイテム: 可変属性とlast_seen_atを上書き更新。新規には数えない。
			existing.TrendItem = item
			existing.LastSeenAt = now
			if err := s.repo.Update(ctx, existing); err != nil {
				slog.Error("アイテムの更新でエラー",
					slog.String("source", string(item.Source)),
					slog.String("source_id", item.SourceID),
					slog.String("error", err.Error()),
				)
				continue
			}
			updated++
		} else {
			// 新規アイテム: first_seen_at = last_seen_at = now で挿入する。
			stored := &model.StoredItem{
				ID:          uuid.New().String(),
				TrendItem:   item,
				FirstSeenAt: now,
				LastSeenAt:  now,
			}
			if err := s.repo.Create(ctx, stored); err != nil {
				slog.Error("アイテムの挿入でエラー",
					slog.String("source", string(item.Source)),
					slog.String("source_id", item.SourceID),
					slog.String("error", err.Error()),
				)
				continue
			}
			newItems = append(newItems, item)
			slog.Info("新規アイテムを観測",
				slog.String("source", string(item.Source)),
				slog.String("source_id", item.SourceID),
			)
		}
	}

	slog.Info("アイテムUPSERT完了",
		slog.Int("total", len(items)),
		slog.Int("inserted", len(newItems)),
		slog.Int("updated", updated),
	)

	return newItems, nil
}

// Recent は直近days日以内に初回観測されたアイテムをfirst_seen_at降順で返す。
// バックエンド未設定の場合は空のリストを返す。
func (s *Store) Recent(ctx context.Context, days, limit int, source model.Source) ([]*model.StoredItem, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRecent(ctx, days, limit, source)
}
