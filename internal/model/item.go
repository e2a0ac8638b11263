// Package model はドメインモデルを定義する。
package model

import "time"

// Source はトレンドアイテムの収集元を表す。
type Source string

const (
	// SourceGitHub はGitHub Trendingページを収集元とすることを示す。
	SourceGitHub Source = "github"
	// SourceHackerNews はHacker News APIを収集元とすることを示す。
	SourceHackerNews Source = "hackernews"
)

// TrendItem は収集元を問わない正規化済みのトレンドアイテムを表す。
// (Source, SourceID) の組がアイテムの同一性を決定する唯一のキーであり、
// タイトル・URL・メタデータは観測のたびに変化しうる可変属性として扱う。
type TrendItem struct {
	Source      Source
	SourceID    string // 収集元内で一意な自然キー（リポジトリ名、HNストーリーID）
	Title       string
	URL         string
	Description string
	Metadata    map[string]any // 収集元固有の付帯情報（stars, points, comments, language など）

	// AI分析結果（フィルタリング後にのみ設定される）
	RelevanceScore   *int // nil = 未評価
	Summary          string
	MatchedInterests []string
	CodeExample      string

	// ライセンス情報（GitHubのみ。他の収集元では license="", is_open_source=false）
	License      string
	IsOpenSource bool
}

// StoredItem は永続化されたトレンドアイテムを表す。
// FirstSeenAtは初回観測時に1度だけ設定され、以後不変。
// LastSeenAtは内容の変化有無にかかわらず観測のたびに更新される。
type StoredItem struct {
	ID string
	TrendItem
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Enrichment はGitHubリポジトリの二次メタデータ（README・ライセンス）を表す。
// 取得に失敗した識別子はゼロ値のEnrichmentとして扱われる。
type Enrichment struct {
	Readme       string
	License      string
	IsOpenSource bool
}

// FilterContext はフィルタリング時に同一性キーで参照される付帯情報を保持する。
// キーはGitHubリポジトリのSourceID（owner/repo）。
type FilterContext struct {
	Readmes       map[string]string
	Licenses      map[string]string
	OpenSourceSet map[string]bool
}

// NewFilterContext は空のFilterContextを生成する。
func NewFilterContext() FilterContext {
	return FilterContext{
		Readmes:       make(map[string]string),
		Licenses:      make(map[string]string),
		OpenSourceSet: make(map[string]bool),
	}
}
