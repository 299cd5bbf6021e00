/*
Package server implements msgpack IPC for the typeahead service: a
request/response model over stdin/stdout, one message per request, each
carrying an id and an op field.

Requests:

	{"id": "req_001", "op": "suggest", "p": "sea", "l": 5}
	{"id": "req_002", "op": "log_query", "q": "sea turtle", "u": "user-1"}
	{"id": "req_003", "op": "stats"}
	{"id": "req_004", "op": "rebuild_trie"}
	{"id": "req_005", "op": "clear_cache"}
	{"id": "req_006", "op": "add_filter", "phrase": "xyz", "reason": "profanity"}
	{"id": "req_007", "op": "remove_filter", "phrase": "xyz"}

Every request may carry an optional "client_id" field identifying the
caller for the sliding-window rate limiter; requests with no client_id
share a single "anonymous" bucket. log_query may additionally carry an
"idempotency_key" field; without one, a key is derived from the
query/user/session triple.

Responses carry the same id and a status/result payload for the op. A
request rejected by the rate limiter gets {"status": "rate_limited",
"retry_after_sec": ...} instead of the op's usual response.
*/
package server

// SuggestRequest is the "suggest" op payload.
type SuggestRequest struct {
	ID              string `msgpack:"id"`
	Prefix          string `msgpack:"p"`
	Limit           int    `msgpack:"l,omitempty"`
	UserID          string `msgpack:"u,omitempty"`
	SkipCache       bool   `msgpack:"skip_cache,omitempty"`
	NoFuzzy         bool   `msgpack:"no_fuzzy,omitempty"`
	MaxEditDistance int    `msgpack:"max_edit_distance,omitempty"`
}

// SuggestionWire is one ranked suggestion on the wire.
type SuggestionWire struct {
	Phrase       string  `msgpack:"w"`
	Count        int64   `msgpack:"n"`
	Score        float64 `msgpack:"s"`
	IsFuzzy      bool    `msgpack:"f,omitempty"`
	EditDistance int     `msgpack:"d,omitempty"`
}

// SuggestResponse is the "suggest" op's response.
type SuggestResponse struct {
	ID          string           `msgpack:"id"`
	Suggestions []SuggestionWire `msgpack:"s"`
	Count       int              `msgpack:"c"`
	TimeTakenUs int64            `msgpack:"t"`
	CacheHit    bool             `msgpack:"cache_hit"`
}

// LogQueryRequest is the "log_query" op payload.
type LogQueryRequest struct {
	ID             string `msgpack:"id"`
	Query          string `msgpack:"q"`
	UserID         string `msgpack:"u,omitempty"`
	SessionID      string `msgpack:"sid,omitempty"`
	IdempotencyKey string `msgpack:"idempotency_key,omitempty"`
}

// StatusResponse is a generic ack/error response shared by several ops.
// RetryAfterSec is set only on a "rate_limited" status.
type StatusResponse struct {
	ID            string  `msgpack:"id"`
	Status        string  `msgpack:"status"`
	Error         string  `msgpack:"error,omitempty"`
	RetryAfterSec float64 `msgpack:"retry_after_sec,omitempty"`
}

// StatsResponse is the "stats" admin op's response.
type StatsResponse struct {
	ID            string         `msgpack:"id"`
	Status        string         `msgpack:"status"`
	PhraseCount   int64          `msgpack:"phrase_count"`
	NodeCount     int            `msgpack:"node_count"`
	MaxDepth      int            `msgpack:"max_depth"`
	TopK          int            `msgpack:"top_k"`
	BufferSize    int64          `msgpack:"buffer_size"`
	BreakerStates map[string]int `msgpack:"breaker_states"`
	UptimeSec     float64        `msgpack:"uptime_sec"`
}

// FilterRequest is the "add_filter"/"remove_filter" op payload.
type FilterRequest struct {
	ID     string `msgpack:"id"`
	Phrase string `msgpack:"phrase"`
	Reason string `msgpack:"reason,omitempty"`
}
