/*
Package observability provides Prometheus instrumentation for widgets and hosts.

Metrics feeds the channel client through channel.Hooks and wraps host stores to
time every applied write. Each Metrics owns its registry, served by Handler.
*/
package observability
