package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Redis read-through lookups in front of Postgres, by cache and result.",
	},
	[]string{"cache", "result"}, // cache="subscriber", result=hit|miss|bypass
)

// IncCacheRequest counts one lookup. "bypass" marks reads inside a
// transaction, which always go to Postgres for the row lock.
func IncCacheRequest(cacheName, result string) {
	cacheLookupsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
