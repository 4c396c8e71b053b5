// Package model defines the shared data vocabulary for the tidelog core.
//
// Everything persisted or exchanged between components lives here:
//   - ChangeEvent: immutable facts appended to the change log
//   - SyncOperation / SyncError: inputs from the sync subsystem
//   - FailureClassification: derived judgment over a raw failure
//   - RecoveryResult: outcome of one strategy execution
//   - BackupInfo / RollbackPoint: snapshot references for undo
//   - ReplaySession and friends: replay bookkeeping
//
// Types in this package are plain data. Behavior lives in the packages
// that own each concern (store, classify, strategy, recovery, replay).
package model
