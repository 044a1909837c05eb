// Package metrics exports scan results in the Prometheus text format for
// the node_exporter textfile collector.
package metrics
