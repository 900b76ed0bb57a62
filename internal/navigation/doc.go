// Package navigation abstracts the page location the session manager reads
// and redirects. Browser keeps the location in memory so that redirects can be
// observed by the caller instead of unloading anything.
package navigation
