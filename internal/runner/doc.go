// Package runner wires a configured annotation converter to the preprocessing
// pipeline: it converts the manifest, loads each annotated WAV file, runs the
// stages on a worker pool and keeps run statistics for the status server.
package runner
