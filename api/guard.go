package api

import (
	"encoding/json"
)

type clientInfo struct {
	ID  *string `json:"id"`
	URL string  `json:"url,omitempty"`
}

// isRequestCircular reports whether the request was sent on behalf of this dispatcher,
// which is the case when the client info names rootURL as its id.
func isRequestCircular(info, rootURL string) bool {
	if info == "" || rootURL == "" {
		return false
	}
	parsed := clientInfo{}
	if err := json.Unmarshal([]byte(info), &parsed); err != nil {
		return false
	}
	return parsed.ID != nil && *parsed.ID == rootURL
}
