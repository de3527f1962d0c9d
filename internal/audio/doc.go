// Package audio holds the sample type that moves through preprocessing, the
// typed context stages use to hand derived facts downstream, and PCM-16 WAV
// encoding used to load dataset files and dump clips.
package audio
