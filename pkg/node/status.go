package node

import (
	"net/http"
	_ "net/http/pprof" // #nosec G108 only routed in dev environments, see newStatusServer
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/readiness"
)

// newStatusServer serves /readyz and /metrics. In dev and test environments pprof is exposed under /debug/pprof/.
func newStatusServer(addr string, env xcommon.Environment, ready *readiness.Registry) *http.Server {
	// Use a custom router instead of http.DefaultServeMux to avoid exposing packages that register themselves with it
	// by default (like pprof).
	router := mux.NewRouter()

	if env == xcommon.UnsafeDevNet || env == xcommon.GoTest {
		router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	}

	router.Handle("/readyz", ready)
	router.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: time.Second, // SECURITY defense against Slowloris Attack
		ReadTimeout:       time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
