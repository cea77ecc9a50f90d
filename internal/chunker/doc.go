// Package chunker splits document text into overlapping fixed-size passages.
//
// Windows are measured in characters and advance by chunkSize-overlap, so
// neighboring passages share exactly overlap characters. The shared text is
// what allows search results to be stitched back into contiguous excerpts.
//
// # Basic Usage
//
//	c, err := chunker.New(1500, 200)
//	if err != nil {
//	    return err // overlap >= chunkSize
//	}
//	passages := c.Split(document)
//
// For one-off calls the package-level Split validates its arguments:
//
//	passages, err := chunker.Split("The cat sat on the mat", 14, 6)
//	// ["The cat sat on", "sat on the mat", "he mat"]
//
// A window starts every chunkSize-overlap characters for as long as the start
// is inside the text, so the last passages can be short tails that repeat the
// end of their predecessor. Stitching absorbs them.
package chunker
