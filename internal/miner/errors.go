package miner

import "errors"

// errPacketQueueFull is returned when a try-send onto the bounded
// outbound channel would block; callers log and drop rather than retry,
// matching the original client's try_send-and-log behavior.
var errPacketQueueFull = errors.New("outbound queue full, dropped")

// errJobStalled forces a reconnect when the current job hasn't changed
// for Config.Expire seconds, the driver's watchdog condition.
var errJobStalled = errors.New("job expired: no new work from pool")

// errRequestTimedOut forces a reconnect when an in-flight request (a
// submit, typically) has sat in the request table past the network
// timeout with no matching result.
var errRequestTimedOut = errors.New("request timed out: no response from pool")
