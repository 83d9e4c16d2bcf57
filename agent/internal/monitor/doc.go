// Package monitor provides the Azure Monitor client capability and the pool
// that shares client handles between scrape jobs.
//
// Identity{Cloud, TenantID, SubscriptionID} keys every client. Two identities
// are equal only when all three fields match exactly (case-sensitive).
//
// Client is the opaque, concurrency-safe handle a job queries metrics with.
// NewAzureFactory returns a Factory that authenticates with azidentity and
// talks to the Resource Manager metrics endpoint through an azcore pipeline.
//
// Pool.Resolve returns the cached Client for an identity, constructing it at
// most once even when many callers resolve the same identity concurrently.
// A failed construction is returned to its callers and is not cached.
package monitor
