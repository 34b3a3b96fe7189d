// Package language normalizes spoken-language identifiers.
//
// The transcription endpoint expects ISO 639-1 codes, but configuration
// files arrive with whatever the user typed: "en", "eng", "English". All
// conversions live here so config handling and display formatting agree on
// one mapping.
package language
