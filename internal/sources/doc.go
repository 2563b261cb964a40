// Package sources discovers the published versions of tracked repositories.
//
// Discovery is selected by the repository's configured kind:
//
//   - source-control repositories are listed through the platform API in
//     tiers: releases, then tags, or the head commit of main/master for
//     branch-tracking repositories
//   - registry packages are listed with a single registry call
//
// Every Discoverer returns candidates ordered oldest to newest and never
// touches the version store. Transient upstream failures are retried with
// exponential backoff; a failure that survives the retries is reported as a
// *DiscoveryError and aborts only the affected repository.
package sources
