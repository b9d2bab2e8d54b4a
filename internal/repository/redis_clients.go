package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
)

// chargeScript seeds the counter from the registry on first use, then
// checks and increments it in one server-side step.
const chargeScript = `
local quota = tonumber(ARGV[1])
local seed = tonumber(ARGV[2])

local used = tonumber(redis.call("GET", KEYS[1]))
if used == nil then
  used = seed
  redis.call("SET", KEYS[1], used)
end

if quota >= 0 and used >= quota then
  return {0, used}
end

used = redis.call("INCR", KEYS[1])
return {1, used}
`

// RedisClients keeps usage counters in Redis and client profiles in a base
// registry. Several gateway replicas can charge the same client safely.
type RedisClients struct {
	client *redis.Client
	base   enterprise.Repository
	script *redis.Script
	prefix string
}

var _ enterprise.Repository = (*RedisClients)(nil)

// NewRedisClients wraps base with Redis usage counters.
func NewRedisClients(client *redis.Client, base enterprise.Repository) *RedisClients {
	return &RedisClients{
		client: client,
		base:   base,
		script: redis.NewScript(chargeScript),
		prefix: "relay:quota:",
	}
}

func (r *RedisClients) key(apiKey string) string {
	return r.prefix + enterprise.HashAPIKey(apiKey)
}

// FindByKey returns the base profile with the live usage counter.
func (r *RedisClients) FindByKey(ctx context.Context, apiKey string) (enterprise.Client, error) {
	c, err := r.base.FindByKey(ctx, apiKey)
	if err != nil {
		return enterprise.Client{}, err
	}

	used, err := r.client.Get(ctx, r.key(apiKey)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return enterprise.Client{}, fmt.Errorf("[REDIS] failed to read usage: %w", err)
	default:
		c.UsedQuota = used
	}
	return c, nil
}

// IncrementUsage runs the check-and-increment script.
func (r *RedisClients) IncrementUsage(ctx context.Context, apiKey string) (enterprise.Client, error) {
	c, err := r.base.FindByKey(ctx, apiKey)
	if err != nil {
		return enterprise.Client{}, err
	}

	res, err := r.script.Run(ctx, r.client, []string{r.key(apiKey)}, c.MonthlyQuota, c.UsedQuota).Slice()
	if err != nil {
		return enterprise.Client{}, fmt.Errorf("[REDIS] charge script failed: %w", err)
	}
	allowed, used, err := parseChargeResult(res)
	if err != nil {
		return enterprise.Client{}, err
	}

	c.UsedQuota = used
	if !allowed {
		return c, &enterprise.QuotaError{Client: c.Name, Quota: c.MonthlyQuota, Used: used}
	}
	return c, nil
}

func parseChargeResult(res []any) (bool, int64, error) {
	if len(res) != 2 {
		return false, 0, fmt.Errorf("[REDIS] invalid charge script response: %v", res)
	}
	allowed, err := toInt64(res[0])
	if err != nil {
		return false, 0, err
	}
	used, err := toInt64(res[1])
	if err != nil {
		return false, 0, err
	}
	return allowed == 1, used, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("[REDIS] unexpected script value %T", v)
	}
}
