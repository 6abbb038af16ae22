// Package ingestion turns one source item into a committed knowledge node.
//
// Pipeline.Process runs an item through its stages in order:
//   - extracting: the source is read into plain text
//   - summarizing: the text is summarized, chunk by chunk when long, into a
//     title, summary, key points, topics, entities and tags
//   - classifying: the summary is compared with the graph for novelty
//   - linking: the node and its relations are committed
//
// Each call returns exactly one Outcome. Failures are reported in the
// outcome rather than as an error, with the stage that failed and the error
// kind used for analytics.
package ingestion
