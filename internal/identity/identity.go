// Package identity authenticates batch custodians for the AyuTrack API.
//
// It provides:
//   - Custodians: the set of custodians allowed to append, with bcrypt secrets
//   - TokenIssuer: issues and verifies HS256 custodian tokens
//   - RequireToken: Gin middleware enforcing a Bearer custodian token
package identity
