// Package retry provides backoff and retry logic for transient upstream
// failures.
//
// Retries are off by default; FromConfig turns the retry settings into a
// Config that runs each operation once unless retries are enabled.
// DefaultRetryIf retries network, rate limit and server errors and gives up
// immediately on anything else.
//
//	cfg := retry.FromConfig(appCfg.Retry, log)
//	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*Page, error) {
//		return client.Search(ctx, q)
//	}, cfg)
package retry
