package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/trendsieve/internal/security"
)

// trendingPageHTML はGitHub Trendingページの構造を模したテスト用フィクスチャ。
// 2件の正常なリポジトリと、リポジトリ名リンクを持たない不正なarticleを含む。
const trendingPageHTML = `<!DOCTYPE html>
<html>
<body>
  <main>
    <article class="Box-row">
      <h2 class="h3"><a href="/golang/go">golang / go</a></h2>
      <p class="col-9">The Go programming language &amp; tools</p>
      <span itemprop="programmingLanguage">Go</span>
      <a href="/golang/go/stargazers">123,456</a>
      <a href="/golang/go/forks">17,890</a>
      <span class="d-inline-block float-sm-right">321 stars today</span>
    </article>
    <article class="Box-row">
      <h2 class="h3"><a href="/rust-lang/rust"> rust-lang / rust </a></h2>
      <a href="/rust-lang/rust/stargazers">98,765</a>
      <span class="d-inline-block float-sm-right">150 stars today</span>
    </article>
    <article class="Box-row">
      <p>リンクを持たない壊れた要素</p>
    </article>
  </main>
</body>
</html>`

func newTestGitHubSource(serverURL string) *GitHubTrendingSource {
	s := NewGitHubTrendingSource("daily", "", 5*time.Second, security.NewDescriptionSanitizer())
	s.baseURL = serverURL + "/trending"
	return s
}

func TestGitHubTrendingSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("since"); got != "daily" {
			t.Errorf("sinceパラメータ = %q, want daily", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(trendingPageHTML))
	}))
	defer server.Close()

	s := newTestGitHubSource(server.URL)

	items, err := s.Fetch(context.Background(), 25)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	// 不正なarticleはスキップされ、2件がページ掲載順で返る
	if len(items) != 2 {
		t.Fatalf("アイテム数 = %d, want 2", len(items))
	}

	first := items[0]
	if first.SourceID != "golang/go" {
		t.Errorf("SourceID = %q, want golang/go", first.SourceID)
	}
	if first.Title != "golang/go" {
		t.Errorf("Title = %q, want golang/go", first.Title)
	}
	if first.Description != "The Go programming language & tools" {
		t.Errorf("Description = %q", first.Description)
	}
	if got := first.Metadata["language"]; got != "Go" {
		t.Errorf("language = %v, want Go", got)
	}
	if got := first.Metadata["stars"]; got != 123456 {
		t.Errorf("stars = %v, want 123456", got)
	}
	if got := first.Metadata["forks"]; got != 17890 {
		t.Errorf("forks = %v, want 17890", got)
	}
	if got := first.Metadata["stars_today"]; got != 321 {
		t.Errorf("stars_today = %v, want 321", got)
	}

	second := items[1]
	if second.SourceID != "rust-lang/rust" {
		t.Errorf("SourceID = %q, want rust-lang/rust", second.SourceID)
	}
	// 説明・言語を持たないリポジトリも許容される
	if second.Description != "" {
		t.Errorf("Description = %q, want empty", second.Description)
	}
	if got := second.Metadata["forks"]; got != 0 {
		t.Errorf("forks = %v, want 0", got)
	}
}

func TestGitHubTrendingSource_FetchRespectsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(trendingPageHTML))
	}))
	defer server.Close()

	s := newTestGitHubSource(server.URL)

	items, err := s.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("アイテム数 = %d, want 1", len(items))
	}
	if items[0].SourceID != "golang/go" {
		t.Errorf("limit適用後も先頭はランキング1位であるべき: %q", items[0].SourceID)
	}
}

func TestGitHubTrendingSource_FetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := newTestGitHubSource(server.URL)

	if _, err := s.Fetch(context.Background(), 25); err == nil {
		t.Error("収集元全体の障害ではエラーを返すべき")
	}
}

func TestGitHubTrendingSource_BuildURL(t *testing.T) {
	tests := []struct {
		name     string
		since    string
		language string
		want     string
	}{
		{
			name:  "デフォルト（全言語・daily）",
			since: "daily",
			want:  "https://github.com/trending?since=daily",
		},
		{
			name:     "言語フィルタ付き",
			since:    "weekly",
			language: "rust",
			want:     "https://github.com/trending/rust?since=weekly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewGitHubTrendingSource(tt.since, tt.language, time.Second, nil)
			if got := s.buildURL(); got != tt.want {
				t.Errorf("buildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1,234", 1234},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseNumber(tt.input); got != tt.want {
			t.Errorf("parseNumber(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
