// Package sqlstore implements store.IStore on top of SQLite (modernc.org/sqlite,
// no cgo). Every namespace is stored in its own table inside a single database
// file, values are encoded with the codec package before they are written.
//
// Storage Layout:
//
//	A namespace ns maps to the table "tl_<ns>" with an index "tl_<ns>_key".
//	Identifiers are always quoted, so namespaces may contain quotes, spaces,
//	unicode or SQL keywords. Tables are created on the first write and never
//	dropped. Reading a namespace without a table behaves like reading an empty
//	namespace.
//
//	  key           TEXT    NOT NULL
//	  version       INTEGER NOT NULL DEFAULT 0   -- always 0 outside of Rename
//	  codecs        BLOB    NOT NULL             -- codec.Chain, e.g. "Js"
//	  value         BLOB    NOT NULL             -- encoded payload
//	  created_at_ms INTEGER NOT NULL
//	  expires_at_ms INTEGER NULL
//	  PRIMARY KEY (key, version)
//
// Batching:
//
//	Batch operations are split so that no statement binds more parameters than
//	the connection allows. The limit is read from the connection on Open.
//	SetMany, DeleteMany and Rename run in a single transaction each.
//
// Rename:
//
//	Rename validates all pairs first (sources must exist unless AllowMissing,
//	targets must be free unless Overwrite, no target may be used twice) and then
//	moves the rows with conditional updates. Moved rows are parked with a
//	negative version until all statements ran, so swaps and cycles work.
//
// Expiry:
//
//	The expiry of a record is stored but not enforced by default. With
//	StoreConfig.EnforceExpiry, Get and GetMany hide expired records. Nothing
//	deletes expired records.
//
// Thread Safety:
//
//	The store holds one dedicated connection behind a mutex, all statements are
//	serialized. Batch encoding (SetMany) and decoding (GetMany) run outside the
//	lock on a pool of GOMAXPROCS goroutines.
//
// Usage Example:
//
//	s, err := sqlstore.Open(ctx, common.DefaultStoreConfig("data.db"))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Set(ctx, "users", "42", map[string]any{"name": "Ada"})
//	v, ok, err := s.Get(ctx, "users", "42")
//	n, err := s.Rename(ctx, "users", map[string]string{"42": "43"}, store.RenameOptions{})
package sqlstore
