// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultInterests はRELEVANCE_INTERESTS未設定時の関心キーワード一覧。
var defaultInterests = []string{
	"AI Agent",
	"LLM",
	"RAG",
	"Vector DB",
	"Embedding",
	"GPT",
	"Claude",
	"Langchain",
	"LlamaIndex",
	"Ollama",
	"Fine-tuning",
	"Prompt Engineering",
	"AI Assistant",
	"Machine Learning",
	"Deep Learning",
	"Transformer",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 外部バックエンドの設定（DATABASE_URL、OPENAI_API_KEY、SLACK_WEBHOOK_URL）は
// すべて任意であり、未設定のコンポーネントは各自の縮退モードで動作する。
type Config struct {
	// Storage
	DatabaseURL string

	// LLM
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	// Notification
	SlackWebhookURL string
	NotifyTimeout   time.Duration

	// Relevance
	Interests          []string
	RelevanceThreshold int

	// GitHub Trending
	GitHubSince      string // daily, weekly, monthly
	GitHubLanguage   string // 空の場合は全言語
	GitHubFetchLimit int

	// Hacker News
	HackerNewsFetchLimit int

	// Fetch
	FetchTimeout        time.Duration
	EnrichMaxConcurrent int
	EnrichAPIRate       float64 // GitHub APIへの秒間リクエスト数上限

	// Rate Limit (dashboard API)
	RateLimitGeneral int // req/min/client

	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// validSinceValues はGITHUB_SINCEに指定可能な期間フィルタ。
var validSinceValues = map[string]bool{
	"daily":   true,
	"weekly":  true,
	"monthly": true,
}

// Load は環境変数からConfigを読み込む。
// 必須の環境変数は存在しない。値の形式が不正な場合のみエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)

	cfg.SlackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	cfg.Interests = getEnvList("RELEVANCE_INTERESTS", defaultInterests)
	cfg.RelevanceThreshold = getEnvInt("RELEVANCE_THRESHOLD", 6)
	if cfg.RelevanceThreshold < 1 || cfg.RelevanceThreshold > 10 {
		return nil, fmt.Errorf("RELEVANCE_THRESHOLD must be between 1 and 10: %d", cfg.RelevanceThreshold)
	}

	cfg.GitHubSince = getEnvString("GITHUB_SINCE", "daily")
	if !validSinceValues[cfg.GitHubSince] {
		return nil, fmt.Errorf("GITHUB_SINCE must be one of daily, weekly, monthly: %s", cfg.GitHubSince)
	}
	cfg.GitHubLanguage = os.Getenv("GITHUB_LANGUAGE")
	cfg.GitHubFetchLimit = getEnvInt("GITHUB_FETCH_LIMIT", 25)

	cfg.HackerNewsFetchLimit = getEnvInt("HACKERNEWS_FETCH_LIMIT", 30)

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.EnrichMaxConcurrent = getEnvInt("ENRICH_MAX_CONCURRENT", 8)
	cfg.EnrichAPIRate = getEnvFloat("ENRICH_API_RATE", 1.0)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を文字列スライスとして読み込む。
// 各要素の前後の空白は除去し、空要素は無視する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var list []string
	for _, part := range strings.Split(v, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			list = append(list, trimmed)
		}
	}
	if len(list) == 0 {
		return defaultVal
	}
	return list
}
