// Package sync drives one repository through a synchronization pass.
//
// A pass lists the repository's upstream versions, drops the ones the
// VersionStore already knows about and moves every remaining candidate
// through a small state machine:
//
//	Discovered -> Filtered
//	Discovered -> Fetching -> Fetched -> Extracting -> Extracted -> Publishing
//	Publishing -> Published | PublishDeferred
//
// Registry packages replace fetching and extraction with an npm install,
// which either yields the package directory (Extracted) or proves the
// version unusable (Rejected).
//
// Only terminal outcomes write to the store: Published and Rejected each
// record the normalized version name with the current time. Skipped,
// PublishDeferred and Pending (dry run) leave no trace, so the version is
// retried on the next pass.
//
// # Ordering
//
// Versions publish strictly in discovery order. Preparation (fetch and
// extract, or install) of upcoming versions may run ahead of publishing,
// bounded by the preparation window. A window of one is fully serial.
//
// # Sync Reasons
//
// Manager.ShouldSync returns a Reason that encodes both whether a pass is
// needed and why. Use Reason.ShouldSync() to check it.
//
// Reasons that indicate a pass is NOT needed:
//   - ReasonRecentlySynced: store activity inside the freshness window
//
// Reasons that indicate a pass IS needed:
//   - ReasonNeverSynced: the repository has no records
//   - ReasonFreshnessWindowElapsed: the last activity is older than the window
//   - ReasonForced: the run was forced
//   - ReasonErrorCheckingActivity: the store could not answer, sync anyway
package sync
