// Package searcher is the public entry point of the catalog search engine.
//
// A Searcher runs the full pipeline for one query:
//
//	query -> tokenizer -> retriever (+ case-UPC resolver when numeric)
//	      -> scorer -> ranker -> case-UPC merge -> enrichment
//
// # Batch Searches
//
// Search runs to completion and returns the ranked results:
//
//	s, err := searcher.New(store, searcher.DefaultConfig(), searcher.WithLogger(log))
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query:   "whole milk",
//	    Filters: types.DefaultFilters(),
//	})
//
// Queries that are empty or shorter than MinQueryLength return an empty
// response and never reach the repository. A repository that is not ready
// yields an error wrapping types.ErrRepositoryUnavailable, which is distinct
// from a search that simply matched nothing.
//
// # Debounced Sessions
//
// A Session serves live typing. Each SearchWithDebounce call restarts a
// length-dependent timer and cancels the search in flight, if any. Every
// call opens a new generation and only the current generation may publish,
// so a slow earlier search never overwrites a later one:
//
//	sess := s.NewSession()
//	defer sess.Close()
//
//	sess.SearchWithDebounce("mil", types.DefaultFilters())
//	for ev := range sess.Events() {
//	    switch ev.Kind {
//	    case searcher.EventSuccess:
//	        render(ev.Response.Results)
//	    case searcher.EventError:
//	        showError(ev.ErrKind)
//	    case searcher.EventCleared:
//	        clearResults()
//	    }
//	}
//
// Cancellation is cooperative. The pipeline checks its context after
// tokenization, retrieval and scoring; repository calls already dispatched
// are allowed to finish and their results are discarded.
//
// # Caching
//
// Whole responses are cached in an LRU keyed by the normalized query,
// fields and limit, with a TTL. The catalog loader calls InvalidateCache
// after every import so readers never see results from a replaced catalog.
package searcher
