package service

import (
	"context"
	"io"
)

// PageFetcher fetches markup pages
type PageFetcher interface {
	// Fetch fetches a URL and returns the response
	Fetch(ctx context.Context, url string) (*HTTPResponse, error)
}

// HTTPResponse represents a fetched page
type HTTPResponse struct {
	URL           string
	StatusCode    int
	Body          string
	ContentLength int
}

// FileFetcher opens authenticated file downloads
type FileFetcher interface {
	// Open starts the transfer of a repository file. fn is the repository
	// relative name, e.g. "pfc-1/filelist.txt".
	Open(ctx context.Context, fn string) (*Download, error)
}

// Download is an open transfer. Size is -1 when the server did not
// declare one.
type Download struct {
	Body io.ReadCloser
	Size int64
}

// Document is parsed markup that can be queried
type Document interface {
	// Text returns the text content of every node matching selector, joined
	Text(selector string) (string, error)
	// HTML returns the outer markup of the first node matching selector
	HTML(selector string) (string, error)
	// Links returns every href attribute value in document order
	Links() []string
}

// MarkupParser parses markup into a queryable document
type MarkupParser interface {
	Parse(markup string) (Document, error)
}
