// Package ingest turns raw document text into searchable passages.
//
// The Service runs the ingest pipeline:
//
//  1. Split: the chunker cuts the text into overlapping windows
//  2. Embed: every window is embedded through the embedding pipeline
//  3. Store: the document and its embedded passages are written in one transaction
//
// # Basic Usage
//
//	svc := ingest.NewService(store, chunker.NewDefault(), pipeline, searcher, logger)
//
//	res, err := svc.Ingest(ctx, "Refund policy", text)
//	var partial *ingest.PartialIngestError
//	switch {
//	case errors.As(err, &partial):
//	    fmt.Printf("stored %d passages, %d failed\n", res.Passages, len(partial.Items))
//	case err != nil:
//	    return err
//	}
//
// # Partial Failures
//
// A passage whose embedding fails is skipped rather than failing the whole
// document. Stored passages keep their original index so the gap is visible
// to the assembler. When nothing can be embedded no document is created.
//
// # Directories and Watching
//
// IngestDirectory ingests every matching file of a tree concurrently, one
// document per file titled with the file name. Only one directory run may be
// active per Service at a time.
//
// A Watcher re-ingests files as they change. Events are debounced per path
// and the document from the previous version of a file is deleted once the
// new one is stored.
package ingest
