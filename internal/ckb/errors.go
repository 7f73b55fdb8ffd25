package ckb

import "errors"

// errInvalidNonce1 marks a malformed nonce1 (extranonce) string from
// the pool: either an odd hex length or more than 16 bytes.
var errInvalidNonce1 = errors.New("invalid nonce1: must be an even-length hex string of at most 16 bytes")

// errJobBeforeNonce1 marks the protocol invariant violation the
// original treats as fatal: a job notification arriving while neither
// the subscribe result (nonce1) nor a mining.set_target has been seen.
var errJobBeforeNonce1 = errors.New("job arrived before nonce1 info")
