package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newHNTestServer はTop Storiesと個別アイテムを返すテストサーバを生成する。
// itemsはID文字列 -> レスポンスJSONのマップ。未登録IDは404を返す。
func newHNTestServer(t *testing.T, topStories []int64, items map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/topstories.json" {
			json.NewEncoder(w).Encode(topStories)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/item/") {
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/item/"), ".json")
			body, ok := items[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, body)
			return
		}
		http.NotFound(w, r)
	}))
}

func newTestHNSource(serverURL string) *HackerNewsSource {
	s := NewHackerNewsSource(5 * time.Second)
	s.baseURL = serverURL
	return s
}

func TestHackerNewsSource_Fetch(t *testing.T) {
	// ID 1: 通常のストーリー
	// ID 2: コメント（スキップされる）
	// ID 3: 外部URLを持たないストーリー（議論ページにフォールバック）
	server := newHNTestServer(t, []int64{1, 2, 3}, map[string]string{
		"1": `{"id":1,"type":"story","title":"A story","url":"https://example.com/a","score":120,"descendants":45,"by":"alice","time":1700000000}`,
		"2": `{"id":2,"type":"comment","title":"","text":"a comment"}`,
		"3": `{"id":3,"type":"story","title":"Ask HN: something","score":10,"descendants":3,"by":"bob","time":1700000100}`,
	})
	defer server.Close()

	s := newTestHNSource(server.URL)

	items, err := s.Fetch(context.Background(), 30)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	// コメントは除外され、ストーリー2件がランキング順で返る
	if len(items) != 2 {
		t.Fatalf("アイテム数 = %d, want 2", len(items))
	}
	if items[0].SourceID != "1" || items[1].SourceID != "3" {
		t.Errorf("SourceIDの順序 = [%s, %s], want [1, 3]", items[0].SourceID, items[1].SourceID)
	}

	first := items[0]
	if first.URL != "https://example.com/a" {
		t.Errorf("URL = %q", first.URL)
	}
	if got := first.Metadata["points"]; got != 120 {
		t.Errorf("points = %v, want 120", got)
	}
	if got := first.Metadata["comments"]; got != 45 {
		t.Errorf("comments = %v, want 45", got)
	}
	if got := first.Metadata["author"]; got != "alice" {
		t.Errorf("author = %v, want alice", got)
	}

	// URL欠落時は議論ページのURLにフォールバックする
	if items[1].URL != "https://news.ycombinator.com/item?id=3" {
		t.Errorf("フォールバックURL = %q", items[1].URL)
	}
}

func TestHackerNewsSource_FetchItemFailureSkips(t *testing.T) {
	// ID 2のアイテム取得は404になるが、残りの収集は継続される
	server := newHNTestServer(t, []int64{1, 2, 3}, map[string]string{
		"1": `{"id":1,"type":"story","title":"first","url":"https://example.com/1"}`,
		"3": `{"id":3,"type":"story","title":"third","url":"https://example.com/3"}`,
	})
	defer server.Close()

	s := newTestHNSource(server.URL)

	items, err := s.Fetch(context.Background(), 30)
	if err != nil {
		t.Fatalf("個別アイテムの失敗が収集全体を中断した: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("アイテム数 = %d, want 2", len(items))
	}
	if items[0].SourceID != "1" || items[1].SourceID != "3" {
		t.Errorf("失敗アイテムを詰めた順序 = [%s, %s], want [1, 3]", items[0].SourceID, items[1].SourceID)
	}
}

func TestHackerNewsSource_FetchRespectsLimit(t *testing.T) {
	server := newHNTestServer(t, []int64{1, 2, 3}, map[string]string{
		"1": `{"id":1,"type":"story","title":"first","url":"https://example.com/1"}`,
		"2": `{"id":2,"type":"story","title":"second","url":"https://example.com/2"}`,
		"3": `{"id":3,"type":"story","title":"third","url":"https://example.com/3"}`,
	})
	defer server.Close()

	s := newTestHNSource(server.URL)

	items, err := s.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("アイテム数 = %d, want 2", len(items))
	}
	if items[0].SourceID != "1" || items[1].SourceID != "2" {
		t.Errorf("limitはランキング上位から適用されるべき: [%s, %s]", items[0].SourceID, items[1].SourceID)
	}
}

func TestHackerNewsSource_TopStoriesUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestHNSource(server.URL)

	if _, err := s.Fetch(context.Background(), 30); err == nil {
		t.Error("Top Stories全体の障害ではエラーを返すべき")
	}
}
