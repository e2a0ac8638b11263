// Package source はトレンドアイテムの収集元アダプターを提供する。
// 各アダプターは収集元固有の形式を正規化済みのTrendItemに変換する。
package source

import (
	"context"

	"github.com/hitoshi/trendsieve/internal/model"
)

// Source はトレンドアイテム収集元のインターフェース。
type Source interface {
	// Name は収集元の識別子を返す。
	Name() model.Source

	// Fetch は収集元から最大limit件のアイテムを取得する。
	// 個別アイテムの不正・取得失敗はスキップし、残りを収集元の
	// ランキング順のまま返す。収集元全体が利用不能な場合は
	// エラーを返す（呼び出し側はログに記録して処理を継続する）。
	Fetch(ctx context.Context, limit int) ([]model.TrendItem, error)
}
