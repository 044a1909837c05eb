// Package report turns a scanned disc into a serializable summary. The same
// model feeds the JSON and YAML output, the history store and the metrics
// export.
package report
