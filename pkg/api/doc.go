/*
Package api implements the Vantage HTTP serving shell.

Each serving worker is its own OS process with its own repository connection
pool. The primary process forks workers via RunPrimary and restarts any that
exit; workers bind the same port with SO_REUSEPORT so the kernel spreads
accepted connections. Within a worker, requests flow through request-timing
capture, request IDs, CORS, compression, structured request logging, route
dispatch, and a terminal error mapper that distinguishes operational from
unexpected failures.

Search requests are dispatched through a strategy selector: the standard
mode routes to the native (substring baseline) or optimized (token index)
repository path, and the ai mode is reserved.

Shutdown is drain-based: on an interrupt or terminate signal the listener
closes, in-flight requests complete, the pool closes, and the worker exits
with status zero.
*/
package api
