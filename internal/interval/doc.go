// Package interval runs one sampling pass of a job_stats domain.
//
// A Controller owns everything with memory across passes for its domain: the
// previous-value store of the delta engine, the aggregation table and the
// filter evaluator. A pass is
//
//	Begin -> Feed / FeedReader ... -> End
//
// Begin applies criteria staged with SetCriteria, resets the table and the
// set of observed jobs. Every fed line is classified by the parser; volume
// headers and job markers move the filter, and counter lines that are in
// scope go through the delta engine into the table. End stamps and returns
// the snapshot, then forgets every job that was not seen during the pass so
// a job that comes back later starts from a fresh baseline.
//
// Lines are never rejected. A line that cannot be classified, a counter of
// an out-of-scope job and a counter outside the canonical field list only
// show up in PassStats. Calling Begin twice, or Feed or End without Begin,
// is an INVALID_STATE error.
//
// A Controller is driven by one goroutine. Use one Controller per domain;
// SetCriteria is the only method safe to call from another goroutine.
package interval
