// Package main hosts the imagemerge CLI.
//
// The command tree wires configuration, logging, and progress output around
// the library: fetch stages gallery images and writes a manifest, merge
// compares the manifest against the archive and copies new images into the
// destination, and run does both. Keep behavior in the library; commands only
// translate flags and render results.
package main
