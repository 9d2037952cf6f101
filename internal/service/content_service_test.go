package service

import (
	"context"
	"errors"
	"testing"

	"pagepal-go/pkg/page"
)

// fakeFetcher 是 page.Fetcher 的固定返回实现。
type fakeFetcher struct {
	article *page.Article
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*page.Article, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.article, nil
}

func TestPrepareReusesCachedTitle(t *testing.T) {
	const url = "https://example.com/article"
	guardRepo := newFakeGuardRepo()
	guardRepo.titles[page.SourceHash(url)] = "Cached Title"
	fetcher := &fakeFetcher{err: errors.New("should not be called")}
	svc := NewContentService(fetcher, guardRepo)

	title, err := svc.Prepare(context.Background(), url, 1)
	if err != nil {
		t.Fatalf("Prepare 返回错误: %v", err)
	}
	if title != "Cached Title" {
		t.Fatalf("期望复用缓存标题，实际 %q", title)
	}
	if fetcher.calls != 0 {
		t.Fatal("当日已准备过的页面不应重新抓取")
	}
}

func TestPrepareFetchFailure(t *testing.T) {
	guardRepo := newFakeGuardRepo()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	svc := NewContentService(fetcher, guardRepo)

	if _, err := svc.Prepare(context.Background(), "https://example.com/article", 1); err == nil {
		t.Fatal("抓取失败应上抛错误")
	}
	if guardRepo.remembers != 0 {
		t.Fatal("失败的准备不应记录幂等键")
	}
}

func TestPrepareEmptyPage(t *testing.T) {
	guardRepo := newFakeGuardRepo()
	fetcher := &fakeFetcher{article: &page.Article{URL: "https://example.com", Title: "Empty", Text: ""}}
	svc := NewContentService(fetcher, guardRepo)

	if _, err := svc.Prepare(context.Background(), "https://example.com", 1); !errors.Is(err, ErrEmptyPage) {
		t.Fatalf("无正文页面应返回 ErrEmptyPage，实际: %v", err)
	}
}
