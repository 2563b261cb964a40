// Package integration provides end-to-end tests for depsync. They drive the
// full pipeline (discovery against fake source-control and registry APIs,
// archive download and extraction, publishing and the SQLite store) through
// one-shot runs and watch mode.
package integration
