// Package cli implements the docsearch command line with cobra.
//
// Every command shares one lazily built App: the first command that needs
// a service loads the configuration, applies the persistent flag overrides
// (--config, --db, --provider, --log-level) and wires storage, cache,
// embedding pipeline, searcher and ingest service. Execute closes the App
// when the command returns.
//
//	docsearch upload notes.md
//	docsearch ingest-dir ./docs --recursive
//	docsearch query "how do refunds work" -n 5
//	docsearch serve --watch ./inbox
package cli
