// Package pkg provides the core libraries for depcheck, a dependency
// freshness gate for npm projects.
//
// # Overview
//
// depcheck compares the version ranges in package.json with the stable
// versions on the npm registry. Outdated dependencies can be accepted with a
// caveat; anything outdated and not accepted fails the check. The pkg
// directory is organized into these areas:
//
//  1. [manifest] - package.json loading
//  2. [caveat] - the caveat table and its file formats
//  3. [resolver] - outdated-dependency resolution against a registry
//  4. [freshness] - caveat filtering, residual reporting and audits
//  5. [integrations] - HTTP clients for the npm registry
//  6. [cache] - file, Redis and null caches for registry responses and reports
//  7. [config] - .depcheck.toml loading
//
// # Architecture
//
// The data flow of a single check:
//
//	package.json
//	     ↓
//	[manifest] package (dependencies, devDependencies)
//	     ↓
//	[resolver] package (registry lookups, semver comparison)
//	     ↓
//	[freshness] package (caveat filter, residual)
//	     ↓
//	CLI output, JSON report or HTTP status
//
// # Error Handling
//
// Errors carry a code from [errors] (RESOLVER_FAILED, TIMEOUT,
// OUTDATED_DEPENDENCIES, ...) so callers can map them to exit codes and
// HTTP statuses with errors.Is.
//
// # Observability
//
// [observability] exposes check and HTTP hooks. The CLI uses them to drive
// its progress spinner.
package pkg
