// Package page 负责抓取网页并抽取标题与正文。
package page

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pagepal-go/internal/config"

	readability "github.com/go-shiori/go-readability"
)

// Article 是一次抓取的抽取结果。
type Article struct {
	URL   string
	Title string
	Text  string
}

// Fetcher defines the interface for fetching and extracting a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Article, error)
}

type httpFetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

// NewFetcher 创建一个基于 net/http + readability 的抓取器。
func NewFetcher(cfg config.PageConfig) Fetcher {
	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 20000
	}
	return &httpFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		maxChars:  maxChars,
	}
}

// Fetch 抓取页面并用 readability 抽取标题与正文。
// 正文超过 maxChars 时按 rune 截断。
func (f *httpFetcher) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("无效的页面地址: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建页面请求失败: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("抓取页面失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("抓取页面返回非 200 状态码: %s", resp.Status)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("抽取页面正文失败: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = parsed.Host
	}
	text := strings.TrimSpace(article.TextContent)
	if runes := []rune(text); len(runes) > f.maxChars {
		text = string(runes[:f.maxChars])
	}

	return &Article{URL: rawURL, Title: title, Text: text}, nil
}

// SourceHash 返回来源 URL 的 sha1 十六进制串，作为快照对象键与索引过滤键。
func SourceHash(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Classify 按来源 URL 区分内容类型，用于提示词中的称呼。
func Classify(rawURL string) string {
	if strings.HasPrefix(rawURL, "https://www.youtube.com/watch") {
		return "youtube video"
	}
	return "webpage"
}
