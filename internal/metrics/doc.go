// Package metrics exposes Prometheus counters and histograms for annotation
// conversion and audio preprocessing.
package metrics
