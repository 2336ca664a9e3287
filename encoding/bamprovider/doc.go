// Package bamprovider provides utilities for scanning alignment records from a
// BAM or SAM file, optionally split into per-reference shards that can be read
// in parallel.
//
// The Provider is an interface for opening the input and generating shards;
// an Iterator yields the records of one shard in file order.
package bamprovider
