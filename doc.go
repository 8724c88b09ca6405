/*
Package casstable provides a pure-Go, embeddable engine for reading and
writing Apache Cassandra 5.0 "nb" SSTable files with byte-perfect wire
compatibility.

Files produced by a Cassandra 5.0 node can be opened and queried with this
package alone, without a running cluster; files produced by this package
can be placed into a Cassandra data directory and served unchanged.

# Scope

This package implements the on-disk subsystem only: the binary SSTable
format parser/writer, the VInt codec, the CQL value type system, the
directory/generation model, compression-block framing, the BIG and BTI
partition index variants, and merge/tombstone-resolution across
generations. It does not implement a CQL query planner, network protocol,
cluster coordination, or compaction scheduling policy.

# Usage

	view, err := casstable.OpenTable(table, "/var/lib/cassandra/data/ks/t-xyz", casstable.Options{})
	part, err := view.Get(partitionKey)
	if casstable.IsNotFound(err) {
		// no such partition
	}
	row, err := part.GetRow(clustering)
	cell, ok := row.Column("name")

Writing a new generation:

	w, err := casstable.OpenWriter(table, dir, generation, sstable.FormatBig, casstable.Options{})
	err = w.AppendPartition(casstable.PartitionInput{
		Key:  partitionKey,
		Rows: []casstable.RowInput{{Clustering: clustering, Cells: cells}},
	})
	err = w.Finalize()
	err = view.Refresh() // pick up the new generation

# Concurrency

A TableView is safe for concurrent use by multiple goroutines. Writes
(new generations) are produced by a single WriterHandle per generation;
multiple generations may be built concurrently. A generation becomes
visible to a TableView only after Finalize returns and Refresh is called;
already-open reads never observe it.

Reference: Apache Cassandra 5.0 on-disk "nb" format.
*/
package casstable
