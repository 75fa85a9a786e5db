// Package tracker defines the shared domain types, interfaces, and error
// taxonomy used by the journal tracker pipeline. Concrete fetchers, stores,
// and strategies live in their own packages and depend only on this one.
package tracker
