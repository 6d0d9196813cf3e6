// Package gc implements the two-phase mark-and-sweep garbage collector for
// the blob store.
//
// A collection run has three steps, enforced by the collector's phase
// machine (Idle -> Scanning -> Stopped -> Swept -> Idle):
//
//  1. Scan: the first call of a run snapshots backend usage and resets every
//     registry record (Used -> Found). Each configured Source then enumerates
//     the tree nodes carrying one of the digest properties, in parallel, and
//     every referenced record is touched back to Used. Scan may be repeated
//     while the run is Scanning.
//  2. StopScan: closes the mark phase and records the stop timestamp.
//  3. DeleteUnused: every record still Found is considered unreachable. The
//     first sweep only flags it; a record found unreachable by two
//     consecutive runs is deleted from the backend.
//
// The debounce means a blob is reclaimed at the earliest on the second run
// after its last reference disappeared. Records that ended up Deleted or
// InError are dropped from the registry after two further scans.
//
// A record touched between StopScan and DeleteUnused is not protected by the
// mark. Callers that need a tight window run the three steps back to back
// (RunCycle).
package gc
