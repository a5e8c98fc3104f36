/*
Package types defines the core data structures shared across Vantage packages.

The types defined here represent businesses from the Australian Business
Register, the raw records produced by the streaming XML parser, search queries
and their paginated results, and ingestion run summaries. Keeping them in a
leaf package avoids import cycles between the storage, ETL, and API layers.
*/
package types
