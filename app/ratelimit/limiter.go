package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carljohntruya-art/taskflow-auth/app/logger"
)

// Action names a rate-limited operation. Keys are namespaced the same way the
// frontend's limit table was (`auth:login`, `auth:register`, ...).
type Action string

const (
	ActionLogin    Action = "auth:login"
	ActionRegister Action = "auth:register"
	ActionAPI      Action = "api:general"
)

// Limit is a fixed-window budget: at most Max consumptions per Window, with
// the window resetting fully rather than refilling gradually.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits is the recognized action table.
var DefaultLimits = map[Action]Limit{
	ActionLogin:    {Max: 5, Window: time.Minute},
	ActionRegister: {Max: 2, Window: time.Hour},
	ActionAPI:      {Max: 100, Window: time.Minute},
}

// Kind classifies a security log entry.
type Kind string

const (
	KindRateLimit          Kind = "rate_limit"
	KindFailedLogin        Kind = "failed_login"
	KindSuspiciousActivity Kind = "suspicious_activity"
)

// LogEntry is one immutable row of the capped security event log.
type LogEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
}

// Decision is the outcome of Allow. RetryAfter is whole seconds until the
// window resets, set only when the request was blocked.
type Decision struct {
	Allowed    bool
	RetryAfter int
}

// Stats summarizes limiter state for the admin dashboard.
type Stats struct {
	TotalBlocked  int
	ActiveWindows int
	Logs          []LogEntry
}

const (
	windowKeyPrefix = "ratelimit:window:"
	securityLogKey  = "ratelimit:security_log"
	logCap          = 50
)

// Limiter is a Redis-backed fixed-window rate limiter with an attached
// security event log. Check-and-increment runs as one Lua script, so
// concurrent callers racing on the same key cannot slip past the limit.
type Limiter struct {
	rdb    *redis.Client
	limits map[Action]Limit
}

// New creates a Limiter with the default action table.
func New(rdb *redis.Client) *Limiter {
	return NewWithLimits(rdb, DefaultLimits)
}

// NewWithLimits creates a Limiter with a custom action table.
func NewWithLimits(rdb *redis.Client, limits map[Action]Limit) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// allowScript checks the window counter and consumes one slot atomically.
// A blocked call does not consume; the counter only ever grows to Max within
// one window, and key expiry is what resets the count to zero.
var allowScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])

if count > 0 and ttl < 0 then
  redis.call("DEL", KEYS[1])
  count = 0
end

if count >= max then
  return {0, ttl}
end

count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
return {1, 0}
`)

func windowKey(action Action, actor string) string {
	return fmt.Sprintf("%s%s:%s", windowKeyPrefix, action, actor)
}

// Allow consumes one slot for (action, actor) if the window has room. Actions
// without a configured limit are unrestricted. On a blocked call a
// `rate_limit` event is appended to the security log.
func (l *Limiter) Allow(ctx context.Context, action Action, actor string) Decision {
	limit, ok := l.limits[action]
	if !ok {
		return Decision{Allowed: true}
	}

	res, err := allowScript.Run(ctx, l.rdb,
		[]string{windowKey(action, actor)},
		limit.Max, limit.Window.Milliseconds(),
	).Result()
	if err != nil {
		// Fail-open on Redis errors to avoid locking everyone out when the
		// limiter store is down.
		logger.Logger.Error().Err(err).Str("action", string(action)).Msg("rate limit check failed")
		return Decision{Allowed: true}
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return Decision{Allowed: true}
	}

	allowed, _ := arr[0].(int64)
	if allowed == 1 {
		return Decision{Allowed: true}
	}

	ttlMs, _ := arr[1].(int64)
	retryAfter := int((ttlMs + 999) / 1000) // ceil to whole seconds
	if retryAfter < 1 {
		retryAfter = 1
	}

	l.LogSecurityEvent(ctx, KindRateLimit,
		fmt.Sprintf("Rate limit exceeded for %s (%s)", action, actor))

	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// LogSecurityEvent appends an entry to the capped log. The newest entry sits
// at the head; once the log holds 50 entries the oldest one is evicted.
func (l *Limiter) LogSecurityEvent(ctx context.Context, kind Kind, message string) {
	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      kind,
		Message:   message,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("marshal security log entry")
		return
	}

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, securityLogKey, payload)
	pipe.LTrim(ctx, securityLogKey, 0, logCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Logger.Error().Err(err).Str("kind", string(kind)).Msg("append security log entry")
	}
}

// Logs returns the full capped log, newest first.
func (l *Limiter) Logs(ctx context.Context) ([]LogEntry, error) {
	raw, err := l.rdb.LRange(ctx, securityLogKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read security log: %w", err)
	}

	entries := make([]LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode security log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetStats reports blocked totals, the number of live windows, and the log.
func (l *Limiter) GetStats(ctx context.Context) (*Stats, error) {
	logs, err := l.Logs(ctx)
	if err != nil {
		return nil, err
	}

	totalBlocked := 0
	for _, entry := range logs {
		if entry.Kind == KindRateLimit {
			totalBlocked++
		}
	}

	activeWindows := 0
	var cursor uint64
	for {
		keys, next, err := l.rdb.Scan(ctx, cursor, windowKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan rate limit windows: %w", err)
		}
		activeWindows += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return &Stats{
		TotalBlocked:  totalBlocked,
		ActiveWindows: activeWindows,
		Logs:          logs,
	}, nil
}
