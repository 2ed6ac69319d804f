// Package cache provides the versioned response cache used by the offline worker.
//
// Responses are stored per tier (core, cultural, API, images, static). Each tier is a
// named cache inside a Store; the tier name carries the release version, so bumping
// the version is what invalidates old content. Keys are canonical (method, URL)
// pairs with the query string kept significant.
package cache
