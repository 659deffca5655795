// Package imaging defines the Image entity flowing through the pipeline and
// the Bayer pattern canonicalization rules shared by every decoder.
//
// An Image owns a float32 sample array of rank 2 (mono or raw sensor mosaic)
// or rank 3 (color, one axis holding the channels) plus provenance metadata.
// Decoders construct Images; downstream stages clone them as needed and the
// staged queues pass them along by reference.
package imaging
