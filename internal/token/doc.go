// Package token parses the two authorization encodings accepted by the backend.
//
// A stored token is always scheme-prefixed:
//
//	Bearer <jwt>
//	SharedAccessSignature <sig>
//
// Bearer tokens carry their expiration in the "exp" claim. Shared access signatures
// embed it as a twelve digit YYYYMMDDHHmm run in UTC, for example
// "integration&202611301530&c2lnbmF0dXJl". A signature may arrive wrapped as
// token="<sig>",refresh=<seconds>, in which case the inner signature is used.
//
// Parsing is pure and deterministic: the same raw value always yields the same
// expiration, which is what makes the memoizing Parser safe.
package token
