package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "rpc",
        Name:      "requests_total",
        Help:      "Total backend requests by command and result",
    }, []string{"cmd", "result"})

    RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "gchat",
        Subsystem: "rpc",
        Name:      "duration_seconds",
        Help:      "Backend request latency by command",
        Buckets:   prometheus.DefBuckets,
    }, []string{"cmd"})

    MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "messages_sent_total",
        Help:      "Messages sent by chat kind and outcome",
    }, []string{"kind", "result"})

    MessageFragments = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "message_fragments_total",
        Help:      "Total message fragments sent by the fragmented fallback",
    })

    CorrelationTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "correlation_timeouts_total",
        Help:      "Sends whose confirmation push did not arrive in time",
    })

    Recalls = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "recalls_total",
        Help:      "Message recalls by outcome",
    }, []string{"result"})

    CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "gchat",
        Subsystem: "cache",
        Name:      "entries",
        Help:      "Cached records by kind (group, roster)",
    }, []string{"kind"})

    CacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "cache",
        Name:      "evictions_total",
        Help:      "Records dropped from the cache by kind",
    }, []string{"kind"})

    BackgroundRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "cache",
        Name:      "background_refreshes_total",
        Help:      "Lazy info refreshes by kind and result",
    }, []string{"kind", "result"})

    RosterFetches = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "roster",
        Name:      "fetches_total",
        Help:      "Full roster fetch sequences issued",
    })

    RosterPages = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "roster",
        Name:      "pages_total",
        Help:      "Roster pages fetched",
    })

    RosterShared = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "roster",
        Name:      "shared_total",
        Help:      "Roster requests served by an in-flight fetch",
    })

    GfsOps = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "gfs",
        Name:      "ops_total",
        Help:      "Group file-store operations by op and result",
    }, []string{"op", "result"})

    GfsUploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "gfs",
        Name:      "upload_bytes_total",
        Help:      "Bytes transferred through the blob channel",
    })

    GfsDedup = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "gfs",
        Name:      "dedup_total",
        Help:      "Uploads skipped because the server already had the content",
    })

    DomainEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "domain_events_total",
        Help:      "Domain events emitted by type",
    }, []string{"type"})

    PoolDropped = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "pool",
        Name:      "dropped_total",
        Help:      "Detached tasks dropped because the queue was full",
    })

    PushEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "gchat",
        Name:      "push_events_total",
        Help:      "Inbound push events by transport",
    }, []string{"transport"})

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "gchat",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "gchat",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
    GatewaySubs = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "gchat",
        Subsystem: "gateway",
        Name:      "push_subscribers",
        Help:      "Number of active gateway push subscribers",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(RPCRequests, RPCDuration)
        prometheus.MustRegister(MessagesSent, MessageFragments, CorrelationTimeouts, Recalls)
        prometheus.MustRegister(CacheEntries, CacheEvictions, BackgroundRefreshes)
        prometheus.MustRegister(RosterFetches, RosterPages, RosterShared)
        prometheus.MustRegister(GfsOps, GfsUploadBytes, GfsDedup)
        prometheus.MustRegister(DomainEvents, PoolDropped, PushEvents)
        // gateway client/server
        prometheus.MustRegister(GRPCConnDials, GRPCConnReuse, GRPCConnEvictions, GRPCConnActive, GatewaySubs)
    })
}

// Result maps an error to a "ok"/"error" label.
func Result(err error) string {
    if err != nil { return "error" }
    return "ok"
}
