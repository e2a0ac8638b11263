package filter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/trendsieve/internal/model"
)

// newMockLLMServer はOpenAI互換のChat Completionsエンドポイントを模した
// テストサーバを生成する。contentがアシスタントの応答本文になる。
func newMockLLMServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("予期しないメソッド: %s", r.Method)
		}
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestFilter(serverURL string, interests []string, threshold int) *RelevanceFilter {
	return NewRelevanceFilter("test-key", "gpt-4o-mini", serverURL, interests, threshold)
}

func sampleItems() []model.TrendItem {
	return []model.TrendItem{
		{
			Source:   model.SourceGitHub,
			SourceID: "acme/llm-kit",
			Title:    "acme/llm-kit",
			URL:      "https://github.com/acme/llm-kit",
			Metadata: map[string]any{"language": "Python", "stars": 500, "stars_today": 42},
		},
		{
			Source:   model.SourceGitHub,
			SourceID: "acme/cooking",
			Title:    "acme/cooking",
			URL:      "https://github.com/acme/cooking",
			Metadata: map[string]any{},
		},
		{
			Source:   model.SourceHackerNews,
			SourceID: "100",
			Title:    "New LLM benchmark",
			URL:      "https://example.com/bench",
			Metadata: map[string]any{"points": 250, "comments": 80},
		},
	}
}

func TestFilter_SelectsRelevantItems(t *testing.T) {
	content := `{"items": [
		{"index": 1, "relevance_score": 9, "matched_interests": ["LLM"], "summary": "LLMツールキット。", "code_example": "from llmkit import run"},
		{"index": 3, "relevance_score": 7, "matched_interests": ["LLM"], "summary": "新しいベンチマーク。", "code_example": ""}
	]}`
	server := newMockLLMServer(t, content)
	defer server.Close()

	f := newTestFilter(server.URL, []string{"LLM", "RAG"}, 6)

	fc := model.NewFilterContext()
	fc.Readmes["acme/llm-kit"] = "# llm-kit"
	fc.Licenses["acme/llm-kit"] = "mit"
	fc.OpenSourceSet["acme/llm-kit"] = true

	results, err := f.Filter(context.Background(), sampleItems(), fc)
	if err != nil {
		t.Fatalf("Filter がエラーを返した: %v", err)
	}

	// 評価されなかった2番目のアイテムは除外され、入力順が維持される
	if len(results) != 2 {
		t.Fatalf("結果数 = %d, want 2", len(results))
	}
	if results[0].SourceID != "acme/llm-kit" || results[1].SourceID != "100" {
		t.Errorf("順序 = [%s, %s]", results[0].SourceID, results[1].SourceID)
	}

	first := results[0]
	if first.RelevanceScore == nil || *first.RelevanceScore != 9 {
		t.Errorf("RelevanceScore = %v, want 9", first.RelevanceScore)
	}
	if first.Summary != "LLMツールキット。" {
		t.Errorf("Summary = %q", first.Summary)
	}
	if len(first.MatchedInterests) != 1 || first.MatchedInterests[0] != "LLM" {
		t.Errorf("MatchedInterests = %v", first.MatchedInterests)
	}
	if first.License != "mit" || !first.IsOpenSource {
		t.Errorf("ライセンス情報がマージされていない: %+v", first)
	}
	if first.CodeExample != "from llmkit import run" {
		t.Errorf("CodeExample = %q", first.CodeExample)
	}

	// オープンソースでないアイテムにはサンプルコードを付与しない
	if results[1].CodeExample != "" {
		t.Errorf("非オープンソースにCodeExampleが付いた: %q", results[1].CodeExample)
	}
}

func TestFilter_DropsInvalidEntries(t *testing.T) {
	content := `{"items": [
		{"index": 99, "relevance_score": 9, "summary": "範囲外インデックス"},
		{"index": 1, "relevance_score": 15, "summary": "範囲外スコア"},
		{"index": 2, "relevance_score": 3, "summary": "閾値未満"}
	]}`
	server := newMockLLMServer(t, content)
	defer server.Close()

	f := newTestFilter(server.URL, []string{"LLM"}, 6)

	results, err := f.Filter(context.Background(), sampleItems(), model.NewFilterContext())
	if err != nil {
		t.Fatalf("Filter がエラーを返した: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("不正エントリはすべて除外されるべき: got %d", len(results))
	}
}

func TestFilter_CodeFencedResponse(t *testing.T) {
	content := "```json\n{\"items\": [{\"index\": 1, \"relevance_score\": 8, \"matched_interests\": [], \"summary\": \"要約\", \"code_example\": \"\"}]}\n```"
	server := newMockLLMServer(t, content)
	defer server.Close()

	f := newTestFilter(server.URL, []string{"LLM"}, 6)

	results, err := f.Filter(context.Background(), sampleItems(), model.NewFilterContext())
	if err != nil {
		t.Fatalf("コードフェンス付きレスポンスを解析できない: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("結果数 = %d, want 1", len(results))
	}
}

func TestFilter_UnparseableResponse(t *testing.T) {
	server := newMockLLMServer(t, "すみません、JSONでは回答できません。")
	defer server.Close()

	f := newTestFilter(server.URL, []string{"LLM"}, 6)

	if _, err := f.Filter(context.Background(), sampleItems(), model.NewFilterContext()); err == nil {
		t.Error("解析不能なレスポンスはエラーになるべき")
	}
}

func TestFilter_UnconfiguredPassesThrough(t *testing.T) {
	f := NewRelevanceFilter("", "gpt-4o-mini", "", []string{"LLM"}, 6)

	if f.Configured() {
		t.Error("APIキーなしでは Configured() は false になるべき")
	}

	items := sampleItems()
	results, err := f.Filter(context.Background(), items, model.NewFilterContext())
	if err != nil {
		t.Fatalf("未設定フィルタでエラーになってはならない: %v", err)
	}
	if len(results) != len(items) {
		t.Errorf("未設定フィルタは全アイテムを通過させるべき: got %d, want %d", len(results), len(items))
	}
	if results[0].RelevanceScore != nil {
		t.Error("未設定フィルタではスコアは未評価のままであるべき")
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	f := NewRelevanceFilter("test-key", "gpt-4o-mini", "", []string{"LLM"}, 6)

	results, err := f.Filter(context.Background(), nil, model.NewFilterContext())
	if err != nil {
		t.Fatalf("空の入力でエラーになってはならない: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("空の入力には空の結果を返すべき: %d", len(results))
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"フェンスなし", `{"items": []}`, `{"items": []}`},
		{"jsonフェンス", "```json\n{\"items\": []}\n```", `{"items": []}`},
		{"言語指定なしフェンス", "```\n{\"items\": []}\n```", `{"items": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.input); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt_TruncatesLongReadme(t *testing.T) {
	f := NewRelevanceFilter("test-key", "gpt-4o-mini", "", []string{"LLM"}, 6)

	longReadme := ""
	for i := 0; i < 400; i++ {
		longReadme += "0123456789"
	}

	fc := model.NewFilterContext()
	fc.Readmes["acme/llm-kit"] = longReadme

	prompt := f.buildPrompt(sampleItems()[:1], fc)
	if strings.Contains(prompt, longReadme) {
		t.Error("READMEはプロンプトに含める前に切り詰められるべき")
	}
	if !strings.Contains(prompt, "[... truncated ...]") {
		t.Errorf("切り詰めマーカーが含まれていない")
	}
}
