// Package credentials records the upstream guest accounts the gateway
// creates, so operators can inspect or reuse them.
//
// Store is a SQLite (modernc.org/sqlite, no cgo) table keyed by
// (user_name, group_id); saving the same key again updates the row.
// AsyncSink puts a bounded queue in front of any Sink so request
// handling never waits on disk:
//
//	store, err := credentials.OpenStore(credentials.StoreConfig{Path: "data/accounts.db"})
//	sink := credentials.NewAsyncSink(store, 256, logger, collector)
//	defer sink.Close(ctx)
package credentials
