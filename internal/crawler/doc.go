// Package crawler implements the listing crawl core: page-count discovery,
// index link collection, the parallel map helper, and the sinks that hand
// extracted listings to a store.
package crawler
