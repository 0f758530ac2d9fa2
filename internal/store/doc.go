// Package store implements the scoped record store over SQLite.
//
// # Overview
//
// A single generic Store implements create/read/update/delete, equality
// queries, and substring search for every entity type. Each entity is
// described once by a Descriptor (table, columns, bind/scan accessors);
// the visibility rule lives in exactly one place and every caller-facing
// route funnels through the owned/public-aware variants.
//
// # Visibility
//
// A Private record is visible only to its owner. A Public record is
// visible to any caller that opts in with includePublic. Ownership
// violations are reported as ErrNotFound so that not-found and forbidden
// are indistinguishable.
//
// # Consistency
//
// Listing, query, and search results are best-effort snapshots: a
// concurrent writer may surface or hide rows between pages. Ordering is
// always created_date then id, so repeated calls over unchanged data are
// deterministic.
package store
