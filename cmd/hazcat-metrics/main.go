// Command hazcat-metrics serves the Prometheus /metrics endpoint for a
// hazcat deployment. It does not itself drive any publish/take traffic. It
// serves this process's own default Prometheus registry with the hazcat
// metrics registered in it; counters and gauges recorded by other
// processes that import pkg/hazcat live in those processes' registries and
// are not visible here.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nightduck/rmw-hazcat/internal/metrics"
)

func main() {
	var addr string
	flag.StringVar(&addr, "listen", ":9115", "address to serve /metrics on")
	flag.Parse()

	metrics.Register()
	http.Handle("/metrics", promhttp.Handler())

	fmt.Printf("hazcat-metrics listening on %s\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Fprintln(os.Stderr, "hazcat-metrics:", err)
		os.Exit(1)
	}
}
