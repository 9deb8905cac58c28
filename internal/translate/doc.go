// Package translate provides the HTTP client for the external machine
// translation API, with bounded concurrency, retries, and statistics.
package translate
