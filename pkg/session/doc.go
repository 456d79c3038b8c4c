// Package session keeps the in-memory mapping from conversation handles to
// the upstream identity (guest token, chat group, bot account) serving
// each conversation.
//
// Sessions are not persisted and not shared between processes. A session
// expires after a period of inactivity; the Sweeper removes expired
// sessions periodically and every lookup expires them lazily.
package session
