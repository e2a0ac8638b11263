package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/trendsieve/internal/model"
	"github.com/hitoshi/trendsieve/internal/security"
)

// githubTrendingBaseURL はGitHub TrendingページのデフォルトURL。
const githubTrendingBaseURL = "https://github.com/trending"

// GitHubTrendingSource はGitHub Trendingページからリポジトリを収集する。
// Trendingには公式APIが存在しないためHTMLをスクレイピングする。
// ページ構造の変化で個別のarticle要素が解析できない場合、
// その要素はスキップして残りを返す。
type GitHubTrendingSource struct {
	baseURL   string // テストで差し替えるためフィールドに持つ
	since     string // daily / weekly / monthly
	language  string // 空文字列は全言語
	client    *http.Client
	sanitizer security.DescriptionSanitizerService
}

// NewGitHubTrendingSource はGitHubTrendingSourceの新しいインスタンスを生成する。
func NewGitHubTrendingSource(since, language string, timeout time.Duration, sanitizer security.DescriptionSanitizerService) *GitHubTrendingSource {
	return &GitHubTrendingSource{
		baseURL:   githubTrendingBaseURL,
		since:     since,
		language:  language,
		client:    &http.Client{Timeout: timeout},
		sanitizer: sanitizer,
	}
}

// Name は収集元の識別子を返す。
func (s *GitHubTrendingSource) Name() model.Source {
	return model.SourceGitHub
}

// buildURL はsince・languageオプションを反映したリクエストURLを生成する。
func (s *GitHubTrendingSource) buildURL() string {
	u := s.baseURL
	if s.language != "" {
		u += "/" + url.PathEscape(s.language)
	}
	return u + "?since=" + url.QueryEscape(s.since)
}

// Fetch はTrendingページを取得して最大limit件のリポジトリを返す。
func (s *GitHubTrendingSource) Fetch(ctx context.Context, limit int) ([]model.TrendItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.buildURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("Trendingページのリクエスト生成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Trendsieve/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Trendingページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TrendingページがHTTP %dを返しました", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("TrendingページのHTML解析に失敗しました: %w", err)
	}

	origin := s.pageOrigin()

	var items []model.TrendItem
	for _, article := range findAllNodes(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "article" && hasClass(n, "Box-row")
	}) {
		if len(items) >= limit {
			break
		}
		item, ok := s.parseRepository(article, origin)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// pageOrigin はbaseURLからスキームとホストを取り出す。
// リポジトリの相対hrefを絶対URLに解決するために使用する。
func (s *GitHubTrendingSource) pageOrigin() string {
	u, err := url.Parse(s.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "https://github.com"
	}
	return u.Scheme + "://" + u.Host
}

// parseRepository はarticle要素からリポジトリ情報を抽出する。
// リポジトリ名が取得できない要素は不正として (zero, false) を返す。
func (s *GitHubTrendingSource) parseRepository(article *html.Node, origin string) (model.TrendItem, bool) {
	// h2 > a のhrefがリポジトリ名（/owner/repo）
	nameLink := findFirstNode(article, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" &&
			hasAncestorTag(n, article, "h2")
	})
	if nameLink == nil {
		return model.TrendItem{}, false
	}
	href := nodeAttr(nameLink, "href")
	name := strings.Trim(href, "/")
	if name == "" {
		return model.TrendItem{}, false
	}

	item := model.TrendItem{
		Source:   model.SourceGitHub,
		SourceID: name,
		Title:    name,
		URL:      origin + "/" + name,
		Metadata: make(map[string]any),
	}

	// 説明文（最初のp要素）。スクレイピング由来のためサニタイズして保持する。
	if p := findFirstNode(article, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "p"
	}); p != nil {
		desc := strings.TrimSpace(textContent(p))
		if s.sanitizer != nil {
			desc = s.sanitizer.Sanitize(desc)
		}
		item.Description = desc
	}

	// プログラミング言語
	if lang := findFirstNode(article, func(n *html.Node) bool {
		return n.Type == html.ElementNode && nodeAttr(n, "itemprop") == "programmingLanguage"
	}); lang != nil {
		item.Metadata["language"] = strings.TrimSpace(textContent(lang))
	}

	// スター数・フォーク数（hrefの末尾で判定）
	item.Metadata["stars"] = parseCountLink(article, "/stargazers")
	item.Metadata["forks"] = parseCountLink(article, "/forks")

	// 本日のスター数（例: "123 stars today"）
	starsToday := 0
	if span := findFirstNode(article, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "span" &&
			hasClass(n, "d-inline-block") && hasClass(n, "float-sm-right")
	}); span != nil {
		fields := strings.Fields(textContent(span))
		if len(fields) > 0 {
			starsToday = parseNumber(fields[0])
		}
	}
	item.Metadata["stars_today"] = starsToday

	return item, true
}

// parseCountLink はhrefが指定のサフィックスで終わるリンクのテキストを数値として返す。
func parseCountLink(article *html.Node, hrefSuffix string) int {
	link := findFirstNode(article, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" &&
			strings.HasSuffix(nodeAttr(n, "href"), hrefSuffix)
	})
	if link == nil {
		return 0
	}
	return parseNumber(textContent(link))
}

// parseNumber はカンマ区切りの数値文字列を解析する（例: "1,234" -> 1234）。
// 解析できない場合は0を返す。
func parseNumber(text string) int {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return 0
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return n
}

// --- HTMLノード走査ヘルパー ---

// findFirstNode は深さ優先で条件を満たす最初のノードを返す。
func findFirstNode(root *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirstNode(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// findAllNodes は深さ優先で条件を満たすすべてのノードを文書順に返す。
func findAllNodes(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var result []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			result = append(result, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return result
}

// hasAncestorTag はnからscopeまでの祖先に指定タグがあるかを返す。
func hasAncestorTag(n, scope *html.Node, tag string) bool {
	for p := n.Parent; p != nil && p != scope.Parent; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return true
		}
	}
	return false
}

// nodeAttr はノードの属性値を返す。属性が存在しない場合は空文字列。
func nodeAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// hasClass はノードのclass属性に指定クラスが含まれるかを返す。
func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(nodeAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent はノード配下のテキストを連結して返す。
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var _ Source = (*GitHubTrendingSource)(nil)
