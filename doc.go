// Package session manages the client half of the authentication lifecycle
// against a remote identity service: token persistence, authenticated HTTP
// transport, and the session state machine the host application observes.
//
// Token storage:
//   - TokenStore keeps the access/refresh pair and the cached user record in
//     two tiers, a durable one that survives restarts and an ephemeral one
//     scoped to the process. A remember-me flag recorded at login time picks
//     the tier; the flag itself always lives in the durable tier so it can be
//     read back after a restart even when the tokens cannot.
//
// Transport:
//   - Client wraps every identity endpoint and attaches the current access
//     token to outgoing calls. Expired access tokens are refreshed once and
//     the call retried transparently; verification failures clear the store
//     and surface as typed events. Callers only ever see a success or a
//     normalized error, never the raw 401/403 mechanics.
//
// Session state:
//   - Manager drives an explicit state machine (initializing, anonymous,
//     authenticated, unverified, error) with a fixed transition table. It is
//     the sole subscriber of transport events, so an asynchronously expired
//     session demotes the process to anonymous no matter what triggered it.
//
// Route guarding:
//   - RequireVerified is fiber middleware that consults the Manager before
//     letting a request into a protected view. Unverified sessions are held
//     at the gate until the email verification step completes.
package session
