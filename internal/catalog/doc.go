// Package catalog holds the media catalog served by the content directory.
//
// # Object model
//
// Every catalog object is one of three variants:
//
//   - *Container: a browsable folder, virtual or backed by a directory
//   - *Item: a leaf backed by a file (a "pure" item)
//   - *URLItem: a leaf whose resource lives at a URL
//
// ObjectType carries the bit flags stored with each object. Clone copies
// an object without sharing its metadata map.
//
// # Partial knowledge
//
// Most lookups need one attribute, such as a parent id while walking up
// the tree. CacheEntry records, per attribute, whether the value is known.
// A full object snapshot makes the derived attributes known together:
//
//	entry := catalog.NewCacheEntry()
//	entry.SetObject(container)
//	loc, ok := entry.Location() // "V/Music" for a virtual container
//
// Until the virtual flag is set an entry assumes the object is virtual;
// Virtual returns (true, false).
//
// # Storage
//
// SQLiteRepository persists objects in the cds_objects table. Store puts
// an LRU Cache in front of it:
//
//	repo := catalog.NewSQLiteRepository(db.DB)
//	cache, err := catalog.NewCache(cfg.Cache.Size)
//	store := catalog.NewStore(repo, cache)
//	store.SetLogger(log)
//
//	parent, err := store.ParentID(ctx, id) // cache first, then one column
//
// Mutations invalidate the touched cache entries, bump the container and
// system update ids, and notify OnChange listeners.
//
// # Thread Safety
//
// Cache and Store are safe for concurrent use. A CacheEntry obtained from
// the cache is a private copy.
package catalog
