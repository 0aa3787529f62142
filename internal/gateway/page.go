package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is one page of a paginated upstream listing.
type Page struct {
	Results []json.RawMessage
	HasNext bool
}

type pageEnvelope struct {
	Results []json.RawMessage `json:"results"`
	Next    json.RawMessage   `json:"next"`
}

// DecodePage accepts either a paginated envelope {"results": [...], "next": ...}
// or a bare JSON array, which is treated as the only page.
func DecodePage(payload json.RawMessage) (Page, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []json.RawMessage
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return Page{Results: results}, nil
	}

	var env pageEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Results == nil {
		return Page{}, fmt.Errorf("%w: missing results list", ErrMalformedResponse)
	}
	return Page{Results: env.Results, HasNext: hasNext(env.Next)}, nil
}

// next may be a URL, a page number, a boolean, or null.
func hasNext(raw json.RawMessage) bool {
	v := string(bytes.TrimSpace(raw))
	switch v {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}
