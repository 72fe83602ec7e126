/*
Package clustererr defines the structured failure shape component
boundaries return, per the error-handling design in spec §7: a Kind (not
a type name), a human message, optional structured Details, and an
optional RetryAfter hint. The HTTP layer (pkg/cluster) maps a Kind to a
status code at the edge; everything inboard of that just returns an
*Error.

Background loops (health sweeper, leader elector, replication
dispatcher) never let one of these escape as a panic — they log it via
pkg/log and continue, per spec §5's "background tasks must never crash
the process."
*/
package clustererr
