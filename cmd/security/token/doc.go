// Package token is the credential codec for chatline.
//
// It is the single source of truth for identity-token behavior.
//
// Design goals:
//   - Self-contained credentials: HMAC-SHA256 signed, 24h expiry by default,
//     no server-side session store and no pre-expiry revocation.
//   - Tolerant identity claim reading: tokens issued by earlier codec versions
//     used different claim names ("userId", "id", "_id", "sub"); all remain
//     accepted via an explicit ordered compatibility list.
//   - Stable failure kinds (malformed / signature / expired) so callers can
//     log precise diagnostics while returning a uniform rejection.
//
// Environment:
//   - CHATLINE_JWT_SECRET: the signing secret.
//
// Policy:
//   - Startup validation MUST enforce a minimum secret size (>= 32 bytes);
//     see app.ValidateSecurityConfig.
package token
