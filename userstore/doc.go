// Package userstore provides sessionauth.UserProvider implementations.
//
// Postgres is the production store: pgx for the connection, squirrel for
// statement building and goose for the embedded schema migrations. Memory
// keeps users in process and is meant for local runs and tests.
//
// Uniqueness of email, username and phone is enforced by the store itself.
// A violation surfaces as *sessionauth.DuplicateError naming the field.
//
// What this package must NOT do:
//
//   - hash or compare passwords
//   - decide which duplicate field wins when several are taken
package userstore
