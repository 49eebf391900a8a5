// Package identity is the source of truth for user accounts.
//
// Credentials embed a Snapshot of a user at issuance time; anything that must
// be current (profile fields on renewal, the online flag) is read back through
// Store rather than trusted from a token.
package identity
