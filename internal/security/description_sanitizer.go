// Package security は外部コンテンツの取り扱いに関する保護機能を提供する。
//
// DescriptionSanitizerService はスクレイピングで取得した説明文から
// HTMLタグをすべて除去し、プレーンテキストとして安全に保存できる形にする。
// bluemondayのStrictPolicy（全タグ除去）をベースにしている。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService は説明文サニタイズ機能のインターフェースを定義する。
// トレンドアイテムの保存前および通知ダイジェストの組み立て時に使用される。
type DescriptionSanitizerService interface {
	// Sanitize は入力からHTMLタグをすべて除去したプレーンテキストを返す。
	// HTMLエンティティはデコードし、連続する空白は1つに正規化する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可しないため、script等の危険なタグも
// 装飾タグもすべてテキストのみに落とされる。
func NewDescriptionSanitizer() *descriptionSanitizer {
	return &descriptionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを除去したプレーンテキストを返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)

	// bluemondayはエンティティをエスケープ済みの形で返すためデコードする
	decoded := html.UnescapeString(stripped)

	// 改行・タブを含む連続空白を1つのスペースに正規化
	return strings.Join(strings.Fields(decoded), " ")
}
