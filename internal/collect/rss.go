package collect

import (
	"context"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"ai-quant/internal/logger"
	"ai-quant/internal/store"
	"ai-quant/internal/types"
)

const collectorUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// RSSCollector pulls headlines from configured RSS feeds. One broken feed is
// logged and skipped; the collector itself only fails on misconfiguration.
type RSSCollector struct {
	feeds   []store.Feed
	timeout time.Duration
	now     func() time.Time
}

func NewRSSCollector(feeds []store.Feed, timeout time.Duration) *RSSCollector {
	return &RSSCollector{feeds: feeds, timeout: timeout, now: time.Now}
}

func (c *RSSCollector) Collect(ctx context.Context) ([]types.RawItem, error) {
	var items []types.RawItem
	for _, feed := range c.feeds {
		feedItems, err := c.collectFeed(ctx, feed)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to collect RSS feed", err, "feed", feed.Name, "url", feed.URL)
			continue
		}
		items = append(items, feedItems...)
		logger.Debug(ctx, "RSS feed collected", "feed", feed.Name, "items", len(feedItems))
	}
	return items, nil
}

func (c *RSSCollector) collectFeed(ctx context.Context, feed store.Feed) ([]types.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	co := colly.NewCollector(colly.UserAgent(collectorUserAgent))
	co.SetRequestTimeout(c.timeout)

	fetchedAt := c.now().UTC()
	var items []types.RawItem
	co.OnXML("//item", func(e *colly.XMLElement) {
		title := strings.TrimSpace(e.ChildText("title"))
		link := strings.TrimSpace(e.ChildText("link"))
		if title == "" || link == "" {
			return
		}
		items = append(items, types.RawItem{
			Source:    feed.Name,
			Title:     title,
			URL:       link,
			FetchedAt: fetchedAt,
		})
	})

	if err := co.Visit(feed.URL); err != nil {
		return nil, err
	}
	return items, nil
}
