// Package npm talks to an npm registry: listing the published versions of a
// package from its packument, and installing one version with the npm CLI as
// a validation step before it is republished.
package npm
