// Package queue orders cache-warming requests for upcoming verse
// lines. It deduplicates repeat requests and drains higher-priority
// lines first so prefetch follows the reader.
package queue
