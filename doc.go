// Package backoffice contains the shared types and helpers used by the
// delivery back-office storage core: the JSON record shape, error taxonomy,
// retry/backoff helpers, ID generation and logging setup.
//
// The actual storage engine lives in the subpackages:
//
//	fs       - locked, atomic JSON array file I/O
//	backup   - daily snapshots, full backups and retention pruning
//	store    - collection-oriented record CRUD and queries
//	payroll  - commission and payroll calculators over store reads
//	eventlog - audit trail of user actions
package backoffice
