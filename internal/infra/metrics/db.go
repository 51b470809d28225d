package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns) }

// dbPoolConns is refreshed by the stale-event monitor on every tick.
var dbPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Postgres pool connections backing the webhook and subscriber repositories.",
	},
	[]string{"state"}, // total | idle | in_use
)

func SetDBPoolStats(total, idle, inUse int32) {
	for state, v := range map[string]int32{"total": total, "idle": idle, "in_use": inUse} {
		dbPoolConns.WithLabelValues(state).Set(float64(v))
	}
}
