// Package util provides small helpers shared by the storage layers.
//
// The package contains:
//   - ReplicaID: turns replica names such as "node-1" into the numeric replica
//     ids of dragonboat
//   - NewRegionID: random non zero ids for the regions of new tables
package util
