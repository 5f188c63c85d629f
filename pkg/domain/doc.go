/*
Package domain contains the core value types of the Passage engine:
immutable workflow graphs, entity snapshots, the bounded transition log,
transition results, and the rejection error taxonomy.

Types in this package are storage- and transport-agnostic. Adapters
serialize them (JSON) but never extend them.
*/
package domain
