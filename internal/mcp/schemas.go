package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/catalogsearch/internal/searcher"
)

var fieldNames = []string{"name", "sku", "barcode", "category"}

// searchCatalogTool returns the tool definition for search_catalog
func searchCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_catalog",
		Description: "Fuzzy search the local catalog by name, SKU, barcode or category",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search text; at least two characters",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"minimum":     1,
					"maximum":     searcher.MaxResultLimit,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of ranked results to skip",
					"default":     0,
					"minimum":     0,
				},
				"fields": map[string]interface{}{
					"type":        "array",
					"description": "Fields to match on (default: name, sku, barcode)",
					"items": map[string]interface{}{
						"type": "string",
						"enum": fieldNames,
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// lookupBarcodeTool returns the tool definition for lookup_barcode
func lookupBarcodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "lookup_barcode",
		Description: "Resolve a scanned barcode against item UPCs and case UPCs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"barcode": map[string]interface{}{
					"type":        "string",
					"description": "Digits read from the scanner",
					"pattern":     "^[0-9]+$",
				},
			},
			Required: []string{"barcode"},
		},
	}
}

// importCatalogTool returns the tool definition for import_catalog
func importCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        "import_catalog",
		Description: "Import a JSON catalog snapshot into the local store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the snapshot file",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report catalog counts, schema version and import state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
