// Package reddit is a minimal client for live lookups of submissions by
// fullname through the /api/info listing.
//
// With client credentials configured the client exchanges them for an
// application-only bearer token and calls the OAuth host; otherwise it
// falls back to the public info.json listing. Calls pass through a
// sliding-window limiter, 60 per minute unless configured otherwise.
package reddit
