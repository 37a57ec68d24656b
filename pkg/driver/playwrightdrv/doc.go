// Package playwrightdrv is the production browser driver: it executes
// automation actions and answers verification probes through Playwright.
//
// The package fills three contracts:
//
//  1. dispatch.Driver: real click/type/select/focus/blur actions
//  2. verify.GeometrySource: last-known element geometry snapshots
//  3. verify.ProbeDispatcher: fire-and-forget hit-test, value, and
//     active-element probes whose answers land in the verification channel
//
// Sessions are keyed by context id; one context maps to one Playwright
// browser context with a single page. Geometry lookups refresh a per-
// (context, selector) snapshot cache so the verifier always sees the
// last-known state even when the page is momentarily unreachable.
package playwrightdrv
