// Package licenses holds the license ledger: per-customer, per-module report
// entitlements and the reports that consume them.
//
// Ledger.RequestReportCreation is the only path that creates reports. It
// picks the customer's active license for the module, refuses when the
// license is exhausted or lapsed, and otherwise increments quantity_used,
// inserts the report and enqueues a report.created outbox event in a single
// transaction. The increment is conditional on quantity_used < quantity_total,
// so concurrent requests can never overdraw a license.
package licenses
