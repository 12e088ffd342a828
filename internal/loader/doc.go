// Package loader imports catalog snapshots into the local store.
//
// The loader is the store's only writer. Search components read the same
// database concurrently and never write to it.
//
// # Basic Usage
//
//	ld := loader.New(store, loader.WithLogger(log))
//	ld.OnImport(searcher.InvalidateCache)
//
//	stats, err := ld.ImportFile(ctx, "catalog.json", &loader.Config{BatchSize: 500})
//	fmt.Printf("wrote %d records, rejected %d\n", stats.Total(), len(stats.ErrorMessages))
//
// # Snapshot Format
//
// A snapshot is one JSON document:
//
//	{
//	  "categories": [{"id": "c1", "name": "Dairy"}],
//	  "items": [{
//	    "id": "i1", "name": "Organic Whole Milk", "category_id": "c1",
//	    "variations": [{"id": "v1", "sku": "MLK-001", "upc": "012345678905", "price_amount": 499}],
//	    "tax_ids": ["t1"],
//	    "image": {"id": "img1", "url": "https://example.com/milk.png"}
//	  }],
//	  "team_data": [{"item_id": "i1", "case_upc": "10012345678902", "case_cost": "23.88", "case_quantity": 24}]
//	}
//
// Prices are integer minor currency units. Case costs are decimals.
//
// # Import Pipeline
//
//  1. Decode: the snapshot is parsed; a malformed document fails the import
//  2. Validate: records are checked concurrently in an ants worker pool;
//     invalid records are skipped and reported in Statistics
//  3. Write: categories commit first, then item and team-data batches commit
//     concurrently, one transaction per batch
//  4. Notify: hooks registered with OnImport run after a successful import
//
// # Concurrency
//
// Only one import runs at a time. A second call returns ErrImportInProgress
// immediately instead of queueing.
package loader
