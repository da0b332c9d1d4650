// Package cache provides the tiered store for synthesized audio. It
// layers an in-memory LRU over a persistent disk store and an optional
// shared remote blob store, promoting hits toward the faster tiers.
package cache
