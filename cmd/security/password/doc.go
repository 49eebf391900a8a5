// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string form
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
// Stored hashes are treated as untrusted input on Verify: parameters far above
// the configured cost are rejected before any work is done.
package password
