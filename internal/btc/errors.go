package btc

import "errors"

// errJobBeforeNonce1 marks a mining.notify arriving before mining.subscribe
// has ever assigned an extranonce1/extranonce2_size pair.
var errJobBeforeNonce1 = errors.New("job arrived before nonce1/extranonce2_size info")

// errInvalidHex marks a malformed hex field in a stratum message.
var errInvalidHex = errors.New("invalid hex field")
