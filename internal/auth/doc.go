// Package auth provides authentication and role-based authorisation for the
// beadle slip service.
//
// It is built from five parts:
//   - Credential store: user accounts with Argon2id password hashes
//   - Role catalog: a fixed, seeded set of primary roles and sub-roles
//   - Role assignments: the user/role join with the "never role-less" rule
//   - Session store: opaque UUID bearer tokens, stored only as SHA-256 hashes
//   - Gate: resolves a token to a user and checks ANY/ALL role requirements
//
// Authorisation is set membership. A role's permission level orders the
// catalog for display and is never used as a threshold.
//
// Call sites may name roles by logical aliases ("member", "teacher"); the
// gate maps them to stored role names through a versioned AliasTable before
// comparing.
package auth
