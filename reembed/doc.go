// Package reembed regenerates the embedding of every knowledge node, for use
// after the embedding model changes.
//
// Nodes are read in batches, embedded from their title and summary with
// retry and exponential backoff, normalized for cosine similarity and
// written back in place.
package reembed
