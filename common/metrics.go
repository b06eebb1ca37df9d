package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Named degraded-path policies
const (
	PolicyRateLimiterFailOpen    = "RateLimiterFailOpen"
	PolicyOAuthPersistBestEffort = "OAuthPersistBestEffort"
)

// DegradedPathCounter counts the times a policy chose availability over strictness
var DegradedPathCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "degraded_path_total",
	Help:      "Number of times a degraded path was taken, by policy",
	Subsystem: "dexcomsync",
	Namespace: "dblp",
}, []string{"policy"})

// DegradedPath records one use of the named policy
func DegradedPath(policy string) {
	DegradedPathCounter.WithLabelValues(policy).Inc()
}
