// Package server implements the optional HTTP status server of an evaluation
// run: health, resolved configuration, progress statistics and Prometheus
// metrics.
package server
