// Package inventorydb implements a hierarchical, multi-tenant inventory
// store (folders and items owned by users) on top of a wide-column backend.
// The tree is denormalized into three independently mutable structures: the
// primary folder column family, a per-owner folder index and a per-item
// parent pointer index. Batches that span rows are not atomic with each
// other; transient divergence between the indexes is tolerated and
// reconciled by a delayed retry manager and by out-of-band maintenance
// scans.
package inventorydb
