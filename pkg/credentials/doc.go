/*
Package credentials stores appliance connection records and keeps their
passwords encrypted at rest.

Store is the only writer of server records. Everything above it works with
*types.Server and plaintext passwords; everything below it (package storage)
only ever sees the EncryptedSecret JSON produced by package security.

# Reading

Get and List run in two phases:

	1. open      decode the stored password
	             ├─ encrypted  → decrypt, return plaintext
	             ├─ plaintext  → return as is (legacy record)
	             └─ unreadable → omit the password, log, keep going
	2. migrate   legacy only: re-read the record under the store lock,
	             encrypt, write back

The migrate phase re-checks the record before writing, so concurrent reads of
the same legacy record encrypt it exactly once. A failed migration is logged
and retried on the next read; the caller still receives the password.

A password that fails to decrypt (written on another device, or corrupted) is
never returned in any form. The record itself is still returned so the user
can re-enter the password.

# Writing

Save validates the record, assigns an ID when missing, keeps CreatedAt of an
existing record, sets UpdatedAt, and encrypts the password. If encryption
fails nothing is written and the error matches security.ErrEncryptionFailed.

Validation problems are collected into a *ValidationError whose message joins
them with "; ", for example:

	name is required; host must be a valid http or https URL

# Deleting

Delete removes the record and its rule cache entry in one bbolt transaction.

# Eager Migration

MigrateAll encrypts every legacy password in one pass. `burrow migrate` runs
it after taking a backup of the database file.
*/
package credentials
