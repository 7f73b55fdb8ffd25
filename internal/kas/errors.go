package kas

import "errors"

// errJobBeforeNonce1 marks a mining.notify arriving before any
// mining.set_extranonce/mining.set_difficulty info has ever been seen.
var errJobBeforeNonce1 = errors.New("job arrived before nonce1/difficulty info")

// errDifficultyNotSet marks a job whose target is still zero: the pool
// never sent mining.set_difficulty.
var errDifficultyNotSet = errors.New("job has no difficulty: mining.set_difficulty not received")
