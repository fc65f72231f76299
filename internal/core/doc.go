// Package core provides the business logic for building downstream parameter sets.
//
// This package is the heart of the set builder, containing all domain logic
// independent of any UI or transport layer. It can be used by the CLI, the
// HTTP server, or tests without modification.
//
// # Architecture
//
// A build reads one upstream run archive (<upstream>.run.<run>.zip) and one
// mapping catalog, and writes one set archive (<downstream>.set.<run>.zip).
// The flow is:
//
//  1. [Builder.Build] validates the request and the input paths
//  2. [LoadRunMetadata] reads the single JSON entry and checks model and run names
//  3. [LoadCatalog] reads the mapping entries
//  4. For each entry of the upstream model, [LocateTable] picks the table
//     entry, [ParseTable] detects its encoding, [NormalizeTable] converts
//     expression tables, and [RowTransformer] maps the rows
//  5. [Assembler] writes parameter files and the descriptor into a staging
//     tree, zips it and removes it
//
// # Services
//
// [Service] wraps the builder with a [BuildLimiter], an optional [Publisher]
// and an optional [HistoryStore]. Only the builder is required.
//
// # Error Handling
//
// Every fatal condition is a typed error ([InputError], [MetadataCountError],
// [MetadataParseError], [IdentityMismatchError], [CatalogError],
// [NoTableMatchError]). [ExitCode] maps them to process exit statuses and
// [MapError] to user-facing messages with a support code. Malformed rows and
// unknown table formats are warnings collected in [BuildResult].
package core
