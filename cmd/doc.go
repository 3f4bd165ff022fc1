// Package cmd defines the kubewake command line: the tail pipeline, the
// containers listing, version and self-update. Running without a
// subcommand is equivalent to 'kubewake tail'.
package cmd
