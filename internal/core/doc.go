// Package core provides the business logic for bulk contact import and
// export against the remote contact API.
//
// It has no transport dependencies beyond the [ContactAPI] interface and can
// be driven by the web server, a CLI or tests.
//
// # Import Flow
//
//  1. [ParseFile] decodes CSV or XLSX bytes into [ImportRow] values in file order
//  2. [RecordMapper] resolves column aliases and builds a [ContactPayload]
//  3. [Importer.Run] sends one create request per row, in series, each gated
//     by the shared [RateLimiter] (50 per second and 2500 per minute by default)
//  4. Failed rows become [ImportError] values; the run continues
//  5. [ErrorReport] renders the errors as a spreadsheet or CSV
//
// [Service] runs imports in the background, broadcasts progress to
// subscribers and keeps each finished run for a retention period.
//
// # Export Flow
//
// [Exporter.Export] fetches all contacts in one request, filters them by an
// [ExportSelection] of tag ids and serializes them with [Encode].
//
// # Error Handling
//
// A [*ParseError] or [*PreconditionError] aborts an operation before any
// contact is created. Per-row failures never abort a run. [MapError] turns
// technical errors into user-facing messages with support codes.
package core
