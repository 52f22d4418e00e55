// Package server hosts the HTTP listener that receives provider redirects.
// It is a thin transport adapter: it parses the callback query parameters,
// hands them to the broker, and renders a small completion page. All
// protocol decisions live in the broker.
package server
