// Package jsondoc provides a generic, file-backed record store.
//
// # Overview
//
// A [Store] owns one JSON document: a single array of objects stored at a
// well-known path, one document per entity type. Every element carries three
// store-managed fields, "id", "created_at" and "updated_at"; everything else
// belongs to the caller and is mapped to and from the caller's type by a
// [Codec].
//
// # Concurrency: Whole-Document Rewrite Under a File Lock
//
// Every operation takes an advisory lock on a sidecar "<path>.lock" file:
// shared for reads, exclusive for writes. Mutations are a read-modify-write of
// the entire document under the exclusive lock. The new document is fully
// serialized in memory, written to a temporary file and renamed over the old
// one, so a reader never observes a torn document and a failed write leaves
// the previous version on disk.
//
// The lock is taken through the operating system rather than an in-memory
// mutex, so independent Store values, goroutines and cooperating processes
// pointed at the same path are all serialized by the same primitive.
//
// # Scale
//
// Lookups are linear scans over the decoded document. This is intended for
// small documents; there is no index.
package jsondoc
