// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/trendsieve/internal/model"
)

// TrendItemRepository はトレンドアイテムの永続化インターフェース。
type TrendItemRepository interface {
	// FindBySourceID は(source, source_id)の同一性キーでアイテムを検索する。
	// 見つからない場合はnilを返す。
	FindBySourceID(ctx context.Context, source model.Source, sourceID string) (*model.StoredItem, error)

	// Create は新規アイテムを作成する。
	Create(ctx context.Context, item *model.StoredItem) error

	// Update は既存アイテムの可変属性とlast_seen_atを上書き更新する。
	// first_seen_atは変更しない。
	Update(ctx context.Context, item *model.StoredItem) error

	// ListRecent は直近days日以内に初回観測されたアイテムを
	// first_seen_at降順で最大limit件返す。
	// sourceが空文字列以外の場合はその収集元のみに絞り込む。
	ListRecent(ctx context.Context, days, limit int, source model.Source) ([]*model.StoredItem, error)
}

// nullString は空文字列をsql.NullStringのNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列値を取り出す。NULLは空文字列になる。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
