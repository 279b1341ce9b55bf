// Package auth resolves one configured credential mechanism into a usable
// transport handle for the exit-time push.
//
// The two mechanisms - the platform's running ssh agent, or an on-disk key
// file with an optional passphrase - are mutually exclusive and never fall
// back to each other. Resolution is lazy: it happens only when a push is
// about to occur, so runs that never push perform no agent or key I/O.
package auth
