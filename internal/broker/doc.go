// Package broker orchestrates credential acquisition for delegated OAuth
// grants. It composes the credential store, the pending-flow store, and
// the token endpoint client into two entry points: Acquire, called when a
// session needs a credential, and Complete, called when a provider
// callback arrives.
//
// Every call resolves to exactly one Outcome. Protocol failures are data,
// not panics: a denied consent or a dead refresh token produces a Failed
// or NeedsAuthorization outcome the caller can relay to the user.
package broker
