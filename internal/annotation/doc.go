// Package annotation converts dataset manifests into classification annotations.
// Converters are registered by provider name and resolved when the run is
// configured. The ESC converter reads the seven-column ESC-50 manifest, filters
// by cross-validation fold and can report audio files missing from disk.
package annotation
