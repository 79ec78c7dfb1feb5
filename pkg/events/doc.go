// Package events parses inbound reconciliation requests.
//
// The asynchronous path delivers a push envelope whose data field is
// base64-encoded JSON. The synchronous API path delivers the same payload
// without the envelope. Both converge on Payload, which validates itself
// and converts into a reconciler request.
//
// An absent or empty iam_users list is a valid request: it means "revoke
// every currently-granted identity and provision nobody new".
package events
