// Package searcher answers natural-language queries over ingested documents.
//
// A search embeds the query, fetches OverFetch times the requested number
// of passage hits from storage, and hands them to the Assembler, which
// produces one result per document.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, pipeline, taggedCache, searcher.DefaultConfig(), logger)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query:    "how do refunds work",
//	    Limit:    10,
//	    UseCache: true,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s (score: %.2f)\n%s\n", r.DocumentTitle, r.Score, r.Content)
//	}
//
// # Assembly
//
// Hits are grouped by document in order of first appearance and sorted by
// passage index. Passages whose contents overlap end to start by at least
// MinOverlap characters are stitched into one run, dropping the repeated
// text. Runs that are not adjacent in the document are joined with the gap
// marker:
//
//	The cat sat on the mat.
//
//	[...]
//
//	Later that day the dog arrived.
//
// A document scores the mean similarity of its hits. Documents are sorted by
// score, ties keeping their first-appearance order, and cut to the limit.
//
// # Caching
//
// Responses are stored in the tagged cache under search:<sha256(query|limit)>
// with the tag "search" plus doc:<id> for every document in the response.
// Ingesting a document invalidates "search"; deleting one invalidates its
// doc:<id> tag. Cache failures never fail a search: they are logged and the
// request proceeds as a miss.
package searcher
