package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/trendsieve/internal/model"
)

// PostgresTrendItemRepo はPostgreSQLを使用したトレンドアイテムリポジトリ。
type PostgresTrendItemRepo struct {
	db *sql.DB
}

// NewPostgresTrendItemRepo はPostgresTrendItemRepoを生成する。
func NewPostgresTrendItemRepo(db *sql.DB) *PostgresTrendItemRepo {
	return &PostgresTrendItemRepo{db: db}
}

// trendItemColumns はSELECT句で使用するカラム一覧。スキャン順序と一致させること。
const trendItemColumns = `id, source, source_id, title, url, description, metadata,
	        relevance_score, summary, matched_interests, code_example,
	        license, is_open_source, first_seen_at, last_seen_at`

// FindBySourceID は(source, source_id)でアイテムを検索する。見つからない場合はnilを返す。
func (r *PostgresTrendItemRepo) FindBySourceID(ctx context.Context, source model.Source, sourceID string) (*model.StoredItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+trendItemColumns+`
		 FROM trend_items WHERE source = $1 AND source_id = $2`,
		string(source), sourceID,
	)

	item, err := scanTrendItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("同一性キーによるアイテムの検索に失敗しました: %w", err)
	}

	return item, nil
}

// Create は新規アイテムを作成する。
func (r *PostgresTrendItemRepo) Create(ctx context.Context, item *model.StoredItem) error {
	metadataJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trend_items (id, source, source_id, title, url, description, metadata,
		                          relevance_score, summary, matched_interests, code_example,
		                          license, is_open_source, first_seen_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		item.ID, string(item.Source), item.SourceID, item.Title, item.URL,
		nullString(item.Description), metadataJSON,
		nullInt(item.RelevanceScore), nullString(item.Summary),
		pq.Array(item.MatchedInterests), nullString(item.CodeExample),
		nullString(item.License), item.IsOpenSource,
		item.FirstSeenAt, item.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存アイテムの可変属性とlast_seen_atを上書き更新する。
// first_seen_atは変更しない。
func (r *PostgresTrendItemRepo) Update(ctx context.Context, item *model.StoredItem) error {
	metadataJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE trend_items SET
		    title = $2, url = $3, description = $4, metadata = $5,
		    relevance_score = $6, summary = $7, matched_interests = $8,
		    code_example = $9, license = $10, is_open_source = $11,
		    last_seen_at = $12
		 WHERE id = $1`,
		item.ID, item.Title, item.URL, nullString(item.Description), metadataJSON,
		nullInt(item.RelevanceScore), nullString(item.Summary),
		pq.Array(item.MatchedInterests), nullString(item.CodeExample),
		nullString(item.License), item.IsOpenSource,
		item.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("アイテムの更新に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は直近days日以内に初回観測されたアイテムをfirst_seen_at降順で返す。
func (r *PostgresTrendItemRepo) ListRecent(ctx context.Context, days, limit int, source model.Source) ([]*model.StoredItem, error) {
	query := `SELECT ` + trendItemColumns + `
		 FROM trend_items
		 WHERE first_seen_at >= now() - make_interval(days => $1)`
	args := []interface{}{days}

	if source != "" {
		query += ` AND source = $2`
		args = append(args, string(source))
	}

	query += fmt.Sprintf(` ORDER BY first_seen_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("直近アイテムの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.StoredItem
	for rows.Next() {
		item, err := scanTrendItem(rows)
		if err != nil {
			return nil, fmt.Errorf("アイテム行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTrendItem は1行をStoredItemに変換する。
func scanTrendItem(row rowScanner) (*model.StoredItem, error) {
	item := &model.StoredItem{}
	var source string
	var description, summary, codeExample, license sql.NullString
	var relevanceScore sql.NullInt64
	var metadataJSON []byte
	var matchedInterests pq.StringArray

	err := row.Scan(
		&item.ID, &source, &item.SourceID, &item.Title, &item.URL,
		&description, &metadataJSON,
		&relevanceScore, &summary, &matchedInterests, &codeExample,
		&license, &item.IsOpenSource, &item.FirstSeenAt, &item.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	item.Source = model.Source(source)
	item.Description = nullStringValue(description)
	item.Summary = nullStringValue(summary)
	item.CodeExample = nullStringValue(codeExample)
	item.License = nullStringValue(license)
	item.MatchedInterests = []string(matchedInterests)

	if relevanceScore.Valid {
		score := int(relevanceScore.Int64)
		item.RelevanceScore = &score
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("metadataのデコードに失敗しました: %w", err)
		}
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}

	return item, nil
}

// marshalMetadata はメタデータマップをJSONB用のバイト列に変換する。
// nilマップは空オブジェクトとして扱う。
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("metadataのエンコードに失敗しました: %w", err)
	}
	return b, nil
}

// nullInt は*intをsql.NullInt64に変換する。nilはNULLになる。
func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// compile-time interface check
var _ TrendItemRepository = (*PostgresTrendItemRepo)(nil)
