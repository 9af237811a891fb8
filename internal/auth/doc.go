// Package auth provides authentication and authorisation for Qode Engine.
//
// It implements a 3-tier role model (viewer → analyst → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Viewers get read-only access to the catalogue, bars, options master and
// greeks. Analysts additionally run read-only SQL and manage saved queries.
// Admins control users, ingestion, master rebuilds and optimisation.
package auth
