// Package password is the credential verifier: a deliberately slow, salted,
// one-way hash over user passwords plus the registration password policy.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes imported from the previous bcrypt-based deployment ("$2a$", "$2b$",
// "$2y$") still compare correctly; [Hasher.NeedsRehash] reports them so the
// caller can upgrade on the next successful login or password reset.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other sessionauth package.
//   - Log plaintext passwords.
package password
