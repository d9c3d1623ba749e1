// Package dos implements the DOS (MBR) partition table: the four primary
// entries in sector 0 and the chain of extended boot records that holds the
// logical partitions.
//
// A Table is read once from a Device (or built empty), edited in memory with
// Add, Delete, Resize and ChangeType, checked with Check and written back
// with Commit. Nothing reaches the disk before Commit.
package dos
