// Package dilution calculates liquid-handling robot transfers for sample
// dilution and normalization, and batches them into driver-file units.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - transfer.go: SingleTransfer, the mutable unit every stage works on
//   - handler.go: the handler pipeline (strict left-to-right fold) and the Or combinator
//   - session.go: per-robot orchestration and cross-robot reconciliation
//
// # Architecture
//
// The flow of one evaluation for one robot is:
//
//	pairs -> transfers -> preconditions -> calculation -> batch split -> row split
//	      -> grouping by batch key -> TransferBatch (round, slot, sort, validate)
//
// Containers own their wells through an Inventory; wells, endpoints and
// transfers refer to containers by ContainerID only.
//
// Sub-packages:
//   - dilution/pairs/: YAML artifact pair source with explicit field mapping
//   - dilution/driverfile/: delimited driver-file renderer
//   - dilution/trace/: decision trace recording
//   - dilution/metrics/: prometheus instrumentation
//
// # Key Interfaces
//   - VolumeCalc: fixed, one-to-one and pooled volume strategies
//   - TransferHandler: one pipeline stage; may replace a transfer with several
//   - PairSource: ordered artifact pairs and their inventory
//   - UpdateSink: persistence of per-target update information
package dilution
