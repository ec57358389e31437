package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/prize"
)

// PreviewCache guarda o preview do prêmio por período em Redis (JSON + TTL).
// Falhas do Redis só são logadas: o preview sempre pode ser recalculado.
type PreviewCache struct {
	R   *redis.Client
	TTL time.Duration
	log *zap.Logger
}

func NewPreviewCache(r *redis.Client, ttl time.Duration, log *zap.Logger) *PreviewCache {
	return &PreviewCache{R: r, TTL: ttl, log: log}
}

func keyPeriod(p prize.Period) string {
	return "prize:preview:" + strconv.FormatInt(p.Start.Unix(), 10) + ":" + strconv.FormatInt(p.End.UnixMilli(), 10)
}

func (c *PreviewCache) Get(ctx context.Context, p prize.Period) (*prize.Distribution, bool) {
	b, err := c.R.Get(ctx, keyPeriod(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("preview cache get", zap.Error(err))
		return nil, false
	}
	var d prize.Distribution
	if err := json.Unmarshal(b, &d); err != nil {
		c.log.Warn("preview cache decode", zap.Error(err))
		return nil, false
	}
	return &d, true
}

func (c *PreviewCache) Set(ctx context.Context, d *prize.Distribution) {
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.R.Set(ctx, keyPeriod(d.Period), b, c.TTL).Err(); err != nil {
		c.log.Warn("preview cache set", zap.Error(err))
	}
}

func (c *PreviewCache) Invalidate(ctx context.Context, p prize.Period) {
	if err := c.R.Del(ctx, keyPeriod(p)).Err(); err != nil {
		c.log.Warn("preview cache invalidate", zap.Error(err))
	}
}
