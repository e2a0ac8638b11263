// Package filter はLLMによるトレンドアイテムの関連性フィルタリングを提供する。
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hitoshi/trendsieve/internal/model"
)

// maxReadmeExcerpt はプロンプトに含めるREADME本文の最大文字数。
const maxReadmeExcerpt = 3000

// systemPrompt はフィルタリングの役割を定義するシステムメッセージ。
const systemPrompt = "あなたは技術トレンド分析の専門家です。アイテム一覧を分析し、関心キーワードとの関連性を構造化データで返してください。"

// filterResponse はLLMレスポンスのスキーマ。
type filterResponse struct {
	Items []filteredEntry `json:"items"`
}

// filteredEntry はLLMが返す1アイテム分の評価結果。
type filteredEntry struct {
	Index            int      `json:"index"`
	RelevanceScore   int      `json:"relevance_score"`
	MatchedInterests []string `json:"matched_interests"`
	Summary          string   `json:"summary"`
	CodeExample      string   `json:"code_example"`
}

// RelevanceFilter はOpenAI Chat Completionsを使用して
// 関心キーワードに関連するアイテムのみを選別し、要約を付与する。
// APIキー未設定の場合は縮退モードとなり、全アイテムを未評価のまま通過させる。
type RelevanceFilter struct {
	client    *openai.Client // nilの場合はフィルタ未設定
	model     string
	interests []string
	threshold int
}

// NewRelevanceFilter はRelevanceFilterの新しいインスタンスを生成する。
// apiKeyが空文字列の場合はフィルタ未設定として扱う。
// baseURLは通常空文字列でよい（OpenAI互換エンドポイントを使う場合のみ指定）。
func NewRelevanceFilter(apiKey, modelName, baseURL string, interests []string, threshold int) *RelevanceFilter {
	f := &RelevanceFilter{
		model:     modelName,
		interests: interests,
		threshold: threshold,
	}
	if apiKey == "" {
		return f
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	f.client = &client

	return f
}

// Configured はLLMフィルタが設定されているかを返す。
func (f *RelevanceFilter) Configured() bool {
	return f.client != nil
}

// Filter はアイテム群をLLMで評価し、閾値以上のアイテムに
// スコア・要約・マッチキーワードを付与して返す。
// フィルタ未設定の場合は全アイテムを未評価のまま通過させる。
// LLM呼び出し自体の失敗はエラーとして返す（呼び出し側はログに記録して継続する）。
func (f *RelevanceFilter) Filter(ctx context.Context, items []model.TrendItem, fc model.FilterContext) ([]model.TrendItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if f.client == nil {
		slog.Info("LLMフィルタ未設定のため全アイテムを通過",
			slog.Int("count", len(items)),
		)
		return items, nil
	}

	prompt := f.buildPrompt(items, fc)

	response, err := f.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: f.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(systemPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(8192),
	})
	if err != nil {
		return nil, fmt.Errorf("LLMリクエストに失敗しました: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("LLMレスポンスが空です")
	}

	content := stripCodeFence(response.Choices[0].Message.Content)

	var parsed filterResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("LLMレスポンスの解析に失敗しました: %w", err)
	}

	return f.buildResults(parsed.Items, items, fc), nil
}

// buildPrompt はアイテム一覧とREADME抜粋からフィルタリングプロンプトを組み立てる。
func (f *RelevanceFilter) buildPrompt(items []model.TrendItem, fc model.FilterContext) string {
	var sb strings.Builder

	sb.WriteString("## 関心キーワード\n")
	sb.WriteString(strings.Join(f.interests, ", "))
	sb.WriteString("\n\n## アイテム一覧\n\n")

	for i, item := range items {
		fmt.Fprintf(&sb, "### %d. [%s] %s\n", i+1, item.Source, item.Title)
		fmt.Fprintf(&sb, "- URL: %s\n", item.URL)
		if item.Description != "" {
			fmt.Fprintf(&sb, "- 説明: %s\n", item.Description)
		}
		if lang, ok := item.Metadata["language"]; ok {
			fmt.Fprintf(&sb, "- 言語: %v\n", lang)
		}
		if stars, ok := item.Metadata["stars"]; ok {
			fmt.Fprintf(&sb, "- スター: %v (本日 +%v)\n", stars, item.Metadata["stars_today"])
		}
		if points, ok := item.Metadata["points"]; ok {
			fmt.Fprintf(&sb, "- ポイント: %v (コメント %v)\n", points, item.Metadata["comments"])
		}
		if readme := fc.Readmes[item.SourceID]; readme != "" {
			excerpt := readme
			if len(excerpt) > maxReadmeExcerpt {
				excerpt = excerpt[:maxReadmeExcerpt] + "\n[... truncated ...]"
			}
			fmt.Fprintf(&sb, "- README:\n```\n%s\n```\n", excerpt)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, `## 作業
各アイテムについて:
1. 関心キーワードとの関連性を0-10点で評価してください。
2. 関連性が%d点以上のアイテムのみ選択してください。
3. 選択したアイテムには日本語で2-3文の要約を付けてください。
4. READMEがある場合、すぐ実行できるサンプルコードを10-15行以内で抽出してください。
   インストールコマンドは除外し、適切な例がなければ空文字列にしてください。

関連のないアイテムは出力から除外してください。該当がなければ空の配列を返してください。

次のJSON形式のみで回答してください:
{"items": [{"index": 1, "relevance_score": 8, "matched_interests": ["LLM"], "summary": "...", "code_example": ""}]}
`, f.threshold)

	return sb.String()
}

// buildResults はLLMの評価結果を元のアイテムにマージする。
// 不正なインデックス、範囲外スコア、閾値未満のエントリは除外する。
// 出力は入力アイテムの順序を維持する。
func (f *RelevanceFilter) buildResults(entries []filteredEntry, items []model.TrendItem, fc model.FilterContext) []model.TrendItem {
	// LLMの出力順ではなく入力順で返すため、インデックスをキーに引けるようにする
	byIndex := make(map[int]filteredEntry, len(entries))
	for _, entry := range entries {
		idx := entry.Index - 1
		if idx < 0 || idx >= len(items) {
			slog.Warn("LLMが不正なインデックスを返した", slog.Int("index", entry.Index))
			continue
		}
		if entry.RelevanceScore < 0 || entry.RelevanceScore > 10 {
			slog.Warn("LLMが範囲外のスコアを返した",
				slog.Int("index", entry.Index),
				slog.Int("score", entry.RelevanceScore),
			)
			continue
		}
		if entry.RelevanceScore < f.threshold {
			continue
		}
		byIndex[idx] = entry
	}

	var results []model.TrendItem
	for i, item := range items {
		entry, ok := byIndex[i]
		if !ok {
			continue
		}

		score := entry.RelevanceScore
		item.RelevanceScore = &score
		item.Summary = entry.Summary
		item.MatchedInterests = f.matchInterests(entry.MatchedInterests)

		// ライセンス情報をマージし、サンプルコードはオープンソースのみ保持する
		item.License = fc.Licenses[item.SourceID]
		item.IsOpenSource = fc.OpenSourceSet[item.SourceID]
		if item.IsOpenSource {
			item.CodeExample = entry.CodeExample
		}

		results = append(results, item)
	}

	return results
}

// matchInterests はLLMが返したキーワードを設定済みの語彙に絞り込む。
func (f *RelevanceFilter) matchInterests(matched []string) []string {
	var result []string
	for _, m := range matched {
		for _, interest := range f.interests {
			if strings.EqualFold(m, interest) {
				result = append(result, interest)
				break
			}
		}
	}
	return result
}

// stripCodeFence はレスポンスを囲むMarkdownコードフェンスを除去する。
// 一部のモデルはJSON指定でも```json ... ```で囲んで返すことがある。
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}
