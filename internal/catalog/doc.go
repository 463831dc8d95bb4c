// Package catalog holds the domain model of the application catalogue:
// entries, categories and the category registry.
//
// Entries and categories are created once per build, during loading and
// schema compilation, and are treated as read-only afterwards.
package catalog
