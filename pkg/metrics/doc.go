/*
Package metrics provides Prometheus metrics for Vantage.

Collectors are package-level and registered at init, following the usual
client_golang pattern. The API server exposes them at /metrics. Request
metrics are labelled by route template and status; search metrics by
technique so the native and optimized paths can be compared in production.
*/
package metrics
