// Package scraper downloads every submission to a subreddit within a time
// range and refreshes live fields on them.
//
// Walker pages through the bulk search API one bounded window at a time.
// A window whose page reaches the truncation threshold is logged as
// possibly truncated. Requests replayed from the request cache are not
// paced; fresh ones are followed by a fixed wait.
//
// Enricher splits records into chunks of at most 100, resolves each chunk
// against the live API through a key-level cache and copies the requested
// attributes onto the records in place. Live things are matched by
// fullname; records that no longer exist are reported, not fatal.
//
// Downloader builds both from a config.Config:
//
//	d, err := scraper.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//
//	records, err := d.GetSubredditSubmissions(ctx, "golang", start, end)
//	report, err := d.UpdateSubredditSubmissions(ctx, records, []string{"score"})
package scraper
