// Package flow manages in-flight authorization flows: the pending
// authorization records created when a user is sent to the provider's
// consent screen, and their correlation with the callback that arrives on
// a later, independent request.
//
// A pending authorization is keyed by its state token and is strictly
// single-use: lookup deletes it, before the code exchange runs, so a
// leaked code+state pair cannot be replayed even if the exchange fails.
// Records that are never consumed expire after a TTL and are garbage
// collected in the background.
package flow
