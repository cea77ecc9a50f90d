// Package mcp implements the Model Context Protocol (MCP) server for docsearch.
//
// The server exposes the document store to AI assistants over stdio:
//   - search_documents: Natural language search, one merged excerpt per document
//   - upload_document: Ingest a document from its title and text
//   - ingest_directory: Ingest every text file of a directory
//   - list_documents / delete_document: Manage ingested documents
//   - get_status: Store statistics and database/cache health
//   - cache_stats / clear_cache: Inspect or drop cached search responses
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries only protocol messages.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {"query": "how do refunds work", "limit": 5}
//	}
//
//	Response:
//	{
//	  "query": "how do refunds work",
//	  "results": [
//	    {
//	      "document_id": 3,
//	      "document_title": "Refund policy",
//	      "content": "Refunds are issued within 14 days...",
//	      "score": 0.82,
//	      "chunk_indices": [0, 1]
//	    }
//	  ],
//	  "total_results": 1,
//	  "raw_hits": 15,
//	  "cached": false,
//	  "duration_ms": 240
//	}
//
// # Tool: upload_document
//
// A document whose passages partly fail to embed is still stored; the
// response lists the failed passages:
//
//	{
//	  "document_id": 4,
//	  "title": "Handbook",
//	  "passages_stored": 11,
//	  "passages_failed": 1,
//	  "errors": ["passage 7: provider call failed: ..."]
//	}
//
// # Rate Limits
//
// Searches are limited to 100 per minute and uploads (including directory
// runs) to 25 per hour by default. A rejected call returns error code
// -32005 with retry_after_ms in its data.
//
// # Error Codes
//
//	-32602  Invalid parameters
//	-32603  Internal error
//	-32001  Document not found
//	-32002  Directory ingest already running
//	-32003  Document could not be ingested
//	-32004  Empty query
//	-32005  Rate limited
package mcp
