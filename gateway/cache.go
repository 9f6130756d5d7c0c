package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/cache"
	"github.com/ethpandaops/pointerbridge/metrics"
)

// ResponseCache keeps encoded results of hash addressed lookups.
// Keys name a block or transaction hash, so cached results survive head changes.
type ResponseCache struct {
	logger logrus.FieldLogger
	cache  *cache.TieredCache
	ttl    time.Duration
}

func NewResponseCache(logger logrus.FieldLogger, tieredCache *cache.TieredCache, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		logger: logger,
		cache:  tieredCache,
		ttl:    ttl,
	}
}

func (rc *ResponseCache) get(key string) (json.RawMessage, bool) {
	if rc == nil {
		return nil, false
	}
	raw, err := rc.cache.GetRaw(key)
	if err != nil {
		if !errors.Is(err, cache.CacheMissError) {
			rc.logger.WithError(err).WithField("key", key).Debug("failed reading response cache")
		}
		metrics.GatewayCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.GatewayCacheHits.WithLabelValues("hit").Inc()
	return raw, true
}

func (rc *ResponseCache) set(key string, value interface{}) {
	if rc == nil {
		return
	}
	if err := rc.cache.Set(key, value, rc.ttl); err != nil {
		rc.logger.WithError(err).WithField("key", key).Debug("failed writing response cache")
	}
}
