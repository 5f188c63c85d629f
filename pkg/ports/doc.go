/*
Package ports defines the collaborator contracts consumed by the Passage
engine, following a hexagonal architecture: the core depends on these
interfaces and adapters implement them.

The only required port is Store. Its compare-and-swap commit is the sole
concurrency gate of the engine; see the Store documentation for the
atomicity requirement adapters must honor.
*/
package ports
