package collect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ai-quant/internal/logger"
	"ai-quant/internal/types"
)

// RedditCollector scrapes post titles from subreddit listing pages. It uses
// the old-reddit markup, which is stable server-rendered HTML.
type RedditCollector struct {
	subreddits []string
	limit      int
	client     *http.Client
	now        func() time.Time
}

func NewRedditCollector(subreddits []string, limit int, timeout time.Duration) *RedditCollector {
	if limit <= 0 {
		limit = 50
	}
	return &RedditCollector{
		subreddits: subreddits,
		limit:      limit,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *RedditCollector) Collect(ctx context.Context) ([]types.RawItem, error) {
	var items []types.RawItem
	for _, sub := range c.subreddits {
		subItems, err := c.collectSubreddit(ctx, sub)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to collect subreddit", err, "subreddit", sub)
			continue
		}
		items = append(items, subItems...)
		logger.Debug(ctx, "Subreddit collected", "subreddit", sub, "items", len(subItems))
	}
	return items, nil
}

func (c *RedditCollector) collectSubreddit(ctx context.Context, sub string) ([]types.RawItem, error) {
	url := fmt.Sprintf("https://old.reddit.com/r/%s/", sub)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", collectorUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subreddit http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse subreddit page: %w", err)
	}

	fetchedAt := c.now().UTC()
	source := "reddit_" + sub
	var items []types.RawItem

	doc.Find("div.thing p.title a.title").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(items) >= c.limit {
			return false
		}
		title := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = "https://old.reddit.com" + href
		}
		items = append(items, types.RawItem{
			Source:    source,
			Title:     title,
			URL:       href,
			FetchedAt: fetchedAt,
		})
		return true
	})

	return items, nil
}
