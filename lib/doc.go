// Package dbq is a connection-pooled access layer for databases reached
// through a legacy driver. It exposes four execution modes over a shared
// scoped-acquisition protocol: queries normalized into row mappings, plain
// and transactional updates, and stored procedure calls with typed input and
// output parameter descriptors. The underlying database/sql driver is an
// opaque capability registered by the process; dbq performs no SQL parsing
// or generation.
package dbq
