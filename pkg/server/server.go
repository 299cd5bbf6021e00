package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/evgenyvinnik/typeahead-core/pkg/aggregator"
	"github.com/evgenyvinnik/typeahead-core/pkg/breaker"
	"github.com/evgenyvinnik/typeahead-core/pkg/idempotency"
	"github.com/evgenyvinnik/typeahead-core/pkg/metrics"
	"github.com/evgenyvinnik/typeahead-core/pkg/ratelimit"
	"github.com/evgenyvinnik/typeahead-core/pkg/suggestservice"
	"github.com/evgenyvinnik/typeahead-core/pkg/trie"
)

// Server handles suggestion, logging and admin requests over msgpack
// IPC: decode a request map, dispatch on op, encode one response.
type Server struct {
	suggest  *suggestservice.Service
	agg      *aggregator.Aggregator
	breakers *breaker.Registry
	trieCfg  trie.Config

	limiter *ratelimit.Limiter
	idem    *idempotency.Store
	metrics *metrics.Registry

	decoder      *msgpack.Decoder
	writeMutex   sync.Mutex
	requestCount int64
	startedAt    time.Time
	log          *log.Logger
}

// New constructs a Server over its collaborators. breakers may be nil, in
// which case the stats response omits breaker_states.
func New(suggest *suggestservice.Service, agg *aggregator.Aggregator, breakers *breaker.Registry, trieCfg trie.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		suggest:   suggest,
		agg:       agg,
		breakers:  breakers,
		trieCfg:   trieCfg,
		decoder:   msgpack.NewDecoder(os.Stdin),
		startedAt: time.Now(),
		log:       logger,
	}
}

// SetRateLimiter wires the sliding-window request limiter into every op
// dispatch. limiter may be nil to leave rate limiting disabled (the zero
// Server's behavior).
func (s *Server) SetRateLimiter(limiter *ratelimit.Limiter) {
	s.limiter = limiter
}

// SetIdempotency wires the write-dedup store into handleLogQuery. store
// may be nil to leave idempotency disabled.
func (s *Server) SetIdempotency(store *idempotency.Store) {
	s.idem = store
}

// SetMetrics wires the rate-limit and idempotency instrumentation, and
// the trie/buffer gauges refreshed on stats. reg may be nil to leave
// instrumentation disabled.
func (s *Server) SetMetrics(reg *metrics.Registry) {
	s.metrics = reg
}

// Start begins the request/response loop, returning nil on client EOF.
func (s *Server) Start() error {
	s.log.Debug("starting msgpack IPC loop")
	for {
		if err := s.processRequest(); err != nil {
			if err == io.EOF {
				s.log.Debug("client disconnected")
				return nil
			}
			s.log.Warnf("request error: %v", err)
			continue
		}
	}
}

func (s *Server) processRequest() error {
	s.requestCount++

	var raw map[string]interface{}
	if err := s.decoder.Decode(&raw); err != nil {
		return err
	}

	id, _ := raw["id"].(string)
	op, _ := raw["op"].(string)

	if result, limited := s.checkRateLimit(raw, op); limited {
		if s.metrics != nil {
			s.metrics.ObserveRateLimitHit(op)
		}
		return s.sendResponse(&StatusResponse{
			ID:            id,
			Status:        "rate_limited",
			RetryAfterSec: result.RetryAfter.Seconds(),
		})
	}

	switch op {
	case "suggest":
		return s.handleSuggest(raw, id)
	case "log_query":
		return s.handleLogQuery(raw, id)
	case "stats":
		return s.handleStats(id)
	case "rebuild_trie":
		return s.handleRebuildTrie(id)
	case "clear_cache":
		return s.handleClearCache(raw, id)
	case "add_filter":
		return s.handleAddFilter(raw, id)
	case "remove_filter":
		return s.handleRemoveFilter(raw, id)
	default:
		return s.sendStatus(id, "error", fmt.Sprintf("unknown op: %q", op))
	}
}

// checkRateLimit applies the sliding-window limit per (client_id, op).
// A request with no "client_id" field shares a single
// "anonymous" bucket, which is sufficient for this stdio transport's
// single-connection-per-process deployment model.
func (s *Server) checkRateLimit(raw map[string]interface{}, op string) (ratelimit.Result, bool) {
	if s.limiter == nil {
		return ratelimit.Result{Allowed: true}, false
	}
	clientID, _ := raw["client_id"].(string)
	if clientID == "" {
		clientID = "anonymous"
	}
	result := s.limiter.Allow(clientID, op)
	return result, !result.Allowed
}

func (s *Server) handleSuggest(raw map[string]interface{}, id string) error {
	// Direct field access into the typed request avoids a second
	// marshal/unmarshal round trip. An empty or missing prefix is valid:
	// the service answers it with the root top-k (most popular overall).
	req := SuggestRequest{ID: id}
	if p, ok := raw["p"].(string); ok {
		req.Prefix = p
	}
	if u, ok := raw["u"].(string); ok {
		req.UserID = u
	}
	if limit, ok := intField(raw["l"]); ok {
		req.Limit = limit
	}
	if skip, ok := raw["skip_cache"].(bool); ok {
		req.SkipCache = skip
	}
	if noFuzzy, ok := raw["no_fuzzy"].(bool); ok {
		req.NoFuzzy = noFuzzy
	}
	if med, ok := intField(raw["max_edit_distance"]); ok {
		req.MaxEditDistance = med
	}

	opts := suggestservice.NewOptions()
	opts.UserID = req.UserID
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	opts.SkipCache = req.SkipCache
	opts.AllowFuzzy = !req.NoFuzzy
	if req.MaxEditDistance > 0 {
		opts.MaxEditDistance = req.MaxEditDistance
	}

	start := time.Now()
	res := s.suggest.Suggest(context.Background(), req.Prefix, opts)
	elapsed := time.Since(start)

	wire := make([]SuggestionWire, len(res.Suggestions))
	for i, sg := range res.Suggestions {
		wire[i] = SuggestionWire{
			Phrase:       sg.Phrase,
			Count:        sg.Count,
			Score:        sg.Score,
			IsFuzzy:      sg.IsFuzzy,
			EditDistance: sg.EditDistance,
		}
	}

	return s.sendResponse(&SuggestResponse{
		ID:          id,
		Suggestions: wire,
		Count:       len(wire),
		TimeTakenUs: elapsed.Microseconds(),
		CacheHit:    res.CacheHit,
	})
}

// handleLogQuery is a fire-and-forget buffer upsert, deduplicated by
// idempotency key so repeated submissions of the same logical event
// within the TTL increment the buffer at most once.
func (s *Server) handleLogQuery(raw map[string]interface{}, id string) error {
	req := LogQueryRequest{ID: id}
	if q, ok := raw["q"].(string); ok {
		req.Query = q
	}
	if req.Query == "" {
		return s.sendStatus(id, "error", "empty query")
	}
	if u, ok := raw["u"].(string); ok {
		req.UserID = u
	}
	if sid, ok := raw["sid"].(string); ok {
		req.SessionID = sid
	}
	if k, ok := raw["idempotency_key"].(string); ok {
		req.IdempotencyKey = k
	}

	if s.idem == nil {
		if s.agg != nil {
			s.agg.ProcessQuery(context.Background(), req.Query, req.UserID, req.SessionID)
		}
		return s.sendStatus(id, "accepted", "")
	}

	key := req.IdempotencyKey
	if key == "" {
		key = idempotency.DeriveKey("log_query", req.Query+"\x00"+req.UserID+"\x00"+req.SessionID)
	}

	_, duplicate, err := s.idem.ExecuteTracked(key, func() (idempotency.Entry, error) {
		if s.agg != nil {
			s.agg.ProcessQuery(context.Background(), req.Query, req.UserID, req.SessionID)
		}
		return idempotency.Entry{Status: 202, StoredAt: time.Now()}, nil
	})
	if err != nil {
		return s.sendStatus(id, "error", err.Error())
	}
	if s.metrics != nil {
		if duplicate {
			s.metrics.ObserveIdempotencyDuplicate("log_query")
		} else {
			s.metrics.ObserveIdempotencyProcessed("log_query")
		}
	}
	return s.sendStatus(id, "accepted", "")
}

func (s *Server) handleStats(id string) error {
	stats := s.suggest.Stats()
	var breakerStates map[string]int
	if s.breakers != nil {
		breakerStates = make(map[string]int, 3)
		for name, st := range s.breakers.States() {
			breakerStates[name] = int(st)
		}
	}
	var bufSize int64
	if s.agg != nil {
		bufSize = s.agg.BufferSize()
	}
	if s.metrics != nil {
		s.metrics.SetTrieStats(stats.PhraseCount, stats.NodeCount, stats.MaxDepth)
		s.metrics.SetAggregationBufferSize(bufSize)
	}
	return s.sendResponse(&StatsResponse{
		ID:            id,
		Status:        "ok",
		PhraseCount:   stats.PhraseCount,
		NodeCount:     stats.NodeCount,
		MaxDepth:      stats.MaxDepth,
		TopK:          stats.TopK,
		BufferSize:    bufSize,
		BreakerStates: breakerStates,
		UptimeSec:     time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleRebuildTrie(id string) error {
	if s.agg == nil {
		return s.sendStatus(id, "error", "aggregator not available")
	}
	if err := s.agg.RebuildTrie(context.Background(), s.trieCfg); err != nil {
		return s.sendStatus(id, "error", err.Error())
	}
	return s.sendStatus(id, "ok", "")
}

func (s *Server) handleClearCache(raw map[string]interface{}, id string) error {
	if pattern, ok := raw["pattern"].(string); ok && pattern != "" {
		s.suggest.ClearCachePattern(pattern)
	} else {
		s.suggest.ClearCache()
	}
	return s.sendStatus(id, "ok", "")
}

func (s *Server) handleAddFilter(raw map[string]interface{}, id string) error {
	req, ok := decodeFilterRequest(raw, id)
	if !ok {
		return s.sendStatus(id, "error", "phrase required")
	}
	if s.agg != nil {
		s.agg.AddFilter(req.Phrase, req.Reason, time.Now())
	}
	return s.sendStatus(id, "ok", "")
}

func (s *Server) handleRemoveFilter(raw map[string]interface{}, id string) error {
	req, ok := decodeFilterRequest(raw, id)
	if !ok {
		return s.sendStatus(id, "error", "phrase required")
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin_override"
	}
	if s.agg != nil {
		s.agg.RemoveFilter(req.Phrase, reason, time.Now())
	}
	return s.sendStatus(id, "ok", "")
}

// decodeFilterRequest populates a FilterRequest from the raw request map;
// ok is false when the required phrase field is missing.
func decodeFilterRequest(raw map[string]interface{}, id string) (FilterRequest, bool) {
	req := FilterRequest{ID: id}
	if p, ok := raw["phrase"].(string); ok {
		req.Phrase = p
	}
	if r, ok := raw["reason"].(string); ok {
		req.Reason = r
	}
	return req, req.Phrase != ""
}

func (s *Server) sendStatus(id, status, errMsg string) error {
	return s.sendResponse(&StatusResponse{ID: id, Status: status, Error: errMsg})
}

// sendResponse encodes to a buffer first and writes it in one call, so
// concurrent responses never interleave on stdout.
func (s *Server) sendResponse(response any) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(response); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func intField(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
