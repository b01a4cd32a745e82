// Package api serves the slot pool webhook surface. The pool
// allocator calls POST /borrow and POST /return with
// {item: {id: <slot>}, params: {sessionId: <session>}} bodies;
// validation failures map to 400, storage and process failures to 500,
// and a per-request failure never takes down the serving loop.
package api
