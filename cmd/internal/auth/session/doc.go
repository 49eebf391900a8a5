// Package session stores the durable record behind each credential lineage.
//
// A session is created once per login or signup and is never deleted; it can
// only be flipped invalid. Credential renewal refuses any session that is
// missing or invalid.
package session
