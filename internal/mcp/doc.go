// Package mcp implements the Model Context Protocol (MCP) server for the
// catalog search engine.
//
// The MCP server exposes four tools to scanner clients and agents:
//   - search_catalog: Fuzzy search by name, SKU, barcode or category
//   - lookup_barcode: Resolve a scanned barcode, including case UPCs
//   - import_catalog: Load a JSON catalog snapshot into the local store
//   - get_status: Report catalog counts and import state
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The server is started via the serve command:
//
//	catalogsearch serve --config catalogsearch.yaml
//
// # Tool: search_catalog
//
//	Request:
//	{
//	  "name": "search_catalog",
//	  "arguments": {
//	    "query": "whole milk",
//	    "limit": 20,
//	    "offset": 0,
//	    "fields": ["name", "sku"]
//	  }
//	}
//
//	Response:
//	{
//	  "query": "whole milk",
//	  "total_matches": 3,
//	  "returned": 3,
//	  "results": [
//	    {
//	      "id": "1",
//	      "name": "Organic Whole Milk",
//	      "price": "4.99",
//	      "match_type": "name",
//	      "score": 65,
//	      "has_tax": true,
//	      "is_from_case_upc": false
//	    }
//	  ]
//	}
//
// Queries shorter than two characters return no results rather than an
// error. Omitted fields default to name, sku and barcode.
//
// # Tool: lookup_barcode
//
// Searches the barcode field only and consults the case-UPC overlay. Case
// hits carry "is_from_case_upc": true and the case cost as their price.
//
// # Tool: import_catalog
//
// Imports are serialized. A second import while one is running fails with
// -32002. Successful imports clear the search cache.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Catalog store unavailable
//   - -32002: Import in progress
//   - -32003: Empty query
//
// # Logging
//
// Stdout is reserved for the protocol. Logs go through zap to stderr.
package mcp
