// Package enrich はGitHubリポジトリの二次メタデータ取得を提供する。
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/trendsieve/internal/model"
	"github.com/hitoshi/trendsieve/internal/security"
)

const (
	githubRawBaseURL = "https://raw.githubusercontent.com"
	githubAPIBaseURL = "https://api.github.com"

	// maxReadmeSize はREADME本文の読み込み上限。
	maxReadmeSize = 1 * 1024 * 1024
)

// readmeCandidates は取得を試みるREADMEファイル名（この順で最初の成功を採用）。
var readmeCandidates = []string{"README.md", "readme.md", "Readme.md", "README.rst"}

// openSourceLicenses はオープンソースと判定するSPDX ID（小文字）の集合。
var openSourceLicenses = map[string]struct{}{
	"mit":          {},
	"apache-2.0":   {},
	"gpl-2.0":      {},
	"gpl-3.0":      {},
	"lgpl-2.1":     {},
	"lgpl-3.0":     {},
	"bsd-2-clause": {},
	"bsd-3-clause": {},
	"mpl-2.0":      {},
	"unlicense":    {},
	"isc":          {},
	"agpl-3.0":     {},
	"cc0-1.0":      {},
	"wtfpl":        {},
	"zlib":         {},
}

// ReadmeEnricher はリポジトリのREADMEとライセンス情報を取得する。
// 取得先URLはスクレイピングで得たリポジトリ名から組み立てるため、
// SSRF防止付きクライアントと事前URL検証の両方を通す。
// ライセンス取得はGitHub APIの未認証レート制限に収まるよう
// レートリミッターで送信間隔を制御する。
type ReadmeEnricher struct {
	rawBaseURL    string // テストで差し替えるためフィールドに持つ
	apiBaseURL    string
	client        *http.Client
	guard         security.SSRFGuardService
	limiter       *rate.Limiter
	maxConcurrent int
}

// NewReadmeEnricher はReadmeEnricherの新しいインスタンスを生成する。
// apiRateはGitHub APIコールの秒間リクエスト数の上限。
func NewReadmeEnricher(guard security.SSRFGuardService, timeout time.Duration, maxConcurrent int, apiRate float64) *ReadmeEnricher {
	return &ReadmeEnricher{
		rawBaseURL:    githubRawBaseURL,
		apiBaseURL:    githubAPIBaseURL,
		client:        guard.NewSafeClient(timeout),
		guard:         guard,
		limiter:       rate.NewLimiter(rate.Limit(apiRate), 1),
		maxConcurrent: maxConcurrent,
	}
}

// EnrichAll は複数リポジトリのメタデータを並行取得し、
// リポジトリ名をキーとするマップで返す。
// 個別リポジトリの取得失敗はゼロ値のEnrichmentに縮退し、全体は継続する。
func (e *ReadmeEnricher) EnrichAll(ctx context.Context, repoNames []string) map[string]model.Enrichment {
	results := make(map[string]model.Enrichment, len(repoNames))
	if len(repoNames) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxConcurrent)

	for _, name := range repoNames {
		wg.Add(1)
		go func(repoName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			enrichment := e.fetchMetadata(ctx, repoName)

			mu.Lock()
			results[repoName] = enrichment
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return results
}

// fetchMetadata は1リポジトリのREADMEとライセンスを取得する。
// READMEとライセンスの片方だけ失敗した場合も、取得できた側は保持する。
func (e *ReadmeEnricher) fetchMetadata(ctx context.Context, repoName string) model.Enrichment {
	var enrichment model.Enrichment

	readme, err := e.fetchReadme(ctx, repoName)
	if err != nil {
		slog.Warn("READMEの取得に失敗",
			slog.String("repo", repoName),
			slog.String("error", err.Error()),
		)
	} else {
		enrichment.Readme = readme
	}

	license, err := e.fetchLicense(ctx, repoName)
	if err != nil {
		slog.Warn("ライセンス情報の取得に失敗",
			slog.String("repo", repoName),
			slog.String("error", err.Error()),
		)
	} else {
		enrichment.License = license
		_, enrichment.IsOpenSource = openSourceLicenses[license]
	}

	return enrichment
}

// fetchReadme はGitHubのrawコンテンツからREADME本文を取得する。
// 候補ファイル名を順に試し、最初に200が返ったものを採用する。
func (e *ReadmeEnricher) fetchReadme(ctx context.Context, repoName string) (string, error) {
	for _, filename := range readmeCandidates {
		url := fmt.Sprintf("%s/%s/HEAD/%s", e.rawBaseURL, repoName, filename)
		body, ok, err := e.get(ctx, url, "")
		if err != nil {
			return "", err
		}
		if ok {
			return body, nil
		}
	}
	return "", fmt.Errorf("READMEが見つかりません")
}

// fetchLicense はGitHub APIからライセンスのSPDX IDを取得する（小文字）。
// ライセンス未設定のリポジトリは404になるため空文字列を返す。
func (e *ReadmeEnricher) fetchLicense(ctx context.Context, repoName string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/license", e.apiBaseURL, repoName)
	body, ok, err := e.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	var payload struct {
		License struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return "", fmt.Errorf("ライセンスレスポンスのデコードに失敗しました: %w", err)
	}

	return strings.ToLower(payload.License.SPDXID), nil
}

// get はURLを検証してからGETリクエストを送信する。
// 戻り値のboolはHTTP 200だったかを示す（404等はエラーではなくfalse）。
func (e *ReadmeEnricher) get(ctx context.Context, url, accept string) (string, bool, error) {
	if err := e.guard.ValidateURL(url); err != nil {
		return "", false, fmt.Errorf("URL検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", "Trendsieve/1.0")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeSize))
	if err != nil {
		return "", false, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	return string(body), true, nil
}
