// Package gimap is a lightweight index for the packages in this module.
//
// This root package is documentation-only. The gimap command lives in
// cmd/gimap; import specific subpackages to use concrete helpers.
//
// Available subpackages:
//   - github.com/spachava753/gimap/auth
//     Delegated service-account token acquisition for a mailbox owner.
//   - github.com/spachava753/gimap/gmail
//     Gmail IMAP session: folders, search criteria, batched message fetch.
//   - github.com/spachava753/gimap/sink
//     Per-message side effects: attachment/.eml writes, text/html dumps.
//   - github.com/spachava753/gimap/report
//     Summary table rendering for fetched messages.
//
// Discovery workflow:
//   - Run: go doc github.com/spachava753/gimap
//   - Then drill in with:
//     go doc github.com/spachava753/gimap/gmail
//     go doc github.com/spachava753/gimap/auth
package gimap
