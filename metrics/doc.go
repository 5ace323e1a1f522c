/*
Package metrics exports recgo operations to Prometheus.

PrometheusCollector implements recgo.MetricsCollector, so it receives both the
model events (save, load, pipeline calls) and the engine events (fit, inserts,
index searches, recommend index rebuilds). The HTTP server additionally
records request latency through RecordRequest.

# Usage

	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(reg)

	model, _ := recgo.New(recgo.WithMetricsCollector(collector))

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

# Available Metrics

Engine:
  - recgo_fit_duration_seconds: Fit latency (histogram)
  - recgo_fit_errors_total: Failed fits (counter)
  - recgo_inserted_vectors_total: Vectors appended (counter)
    Labels: space
  - recgo_search_duration_seconds: Index search latency (histogram)
    Labels: index
  - recgo_index_rebuilds_total: Recommend index rebuilds (counter)
    Labels: index
  - recgo_entities: Rows per space after the last fit or insert (gauge)
    Labels: space

Persistence:
  - recgo_save_duration_seconds: Snapshot write latency (histogram)
    Labels: mode
  - recgo_save_bytes_total: Encoded snapshot bytes written (counter)
  - recgo_load_duration_seconds: Snapshot load latency (histogram)

Pipeline and HTTP:
  - recgo_process_total: Pipeline calls (counter)
    Labels: kind, status
  - recgo_process_resolved_artists: Known artists per call (histogram)
  - recgo_http_requests_total: HTTP requests (counter)
    Labels: method, route, status
  - recgo_http_request_duration_seconds: HTTP latency (histogram)
    Labels: method, route
*/
package metrics
