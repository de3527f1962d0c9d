// Package preprocess implements audio preprocessing stages and the pipeline
// that chains them. Stages are registered by type name, configured once from
// the run configuration, and communicate derived facts through the sample's
// audio.Context.
package preprocess
