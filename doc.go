/*
Package passage is a guarded finite-state-machine transition engine for
governing the lifecycle of business entities (jobs, orders, applications,
uploads) under concurrent access.

A workflow is described by an immutable Graph: a set of named states and
named transitions between them. Entities are snapshots of (state, version,
transition log) persisted through a pluggable Store port. Applying a
transition resolves the requested event against the graph, evaluates
registered guards and before-callbacks, and commits through the store's
atomic compare-and-swap so that concurrent writers cannot silently
overwrite each other: exactly one caller wins a given version, every other
caller receives a version conflict carrying both version numbers.

Every attempt, committed or refused, is appended to a bounded per-entity
audit log with a never-reused sequence number.

# Usage

	graph, err := domain.NewGraph(domain.GraphSpec{
		Name:    "upload",
		States:  []string{"idle", "uploading", "processing", "done"},
		Initial: "idle",
		Transitions: []domain.TransitionSpec{
			{Name: "start", From: []string{"idle"}, To: "uploading"},
			{Name: "success", From: []string{"uploading"}, To: "processing"},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	engine, err := passage.New(memory.NewStore(), passage.WithGraph(graph))
	if err != nil {
		log.Fatal(err)
	}

	snap, _ := engine.CreateEntity(ctx, "upload")
	res, err := engine.ApplyTransition(ctx, snap.ID, "start", 0, nil)
	// res.To == "uploading", res.NewVersion == 1

Graphs, guards, and callbacks are assembled once at process start and
handed to New; there is no global mutable registry. Storage adapters for
memory, the filesystem, and Redis live under pkg/adapters, together with a
REST surface in pkg/adapters/http.
*/
package passage
