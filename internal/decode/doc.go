// Package decode turns image files on disk into imaging.Image values.
//
// Dispatch is purely by file extension, case-insensitive: .fit and .fits go
// through the FITS container reader, everything else through the RAW sensor
// dump reader. There is no content sniffing. Both paths normalize mosaic
// metadata into the canonical Bayer pattern order so downstream code never
// sees sensor-native index tiles.
//
// Every failure is a recoverable decode error: callers log it and drop the
// file, nothing panics and nothing is retried.
package decode
