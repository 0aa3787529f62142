package gateway

import (
	"context"
	"encoding/json"
	"net/url"
)

// Fetcher issues read-only calls against the payments API and returns the raw
// JSON payload of a successful response.
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}
