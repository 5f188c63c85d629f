package domain

// Snapshot is the persisted record of one workflow entity: its governing
// graph, current state, optimistic version counter, and bounded transition
// log. It is mutated exclusively through the Store port's commit and
// append operations.
type Snapshot struct {
	ID        string         `json:"id"`
	GraphName string         `json:"graph_name"`
	State     string         `json:"state"`
	// Version starts at 0 on creation and is incremented by exactly 1 on
	// every committed transition. Rejected attempts never advance it.
	Version int64          `json:"version"`
	Log     *TransitionLog `json:"log"`
}

// NewSnapshot creates a fresh entity snapshot at the graph's initial
// state with version 0 and an empty log.
func NewSnapshot(id, graphName, initialState string, logCap int) *Snapshot {
	return &Snapshot{
		ID:        id,
		GraphName: graphName,
		State:     initialState,
		Version:   0,
		Log:       NewTransitionLog(logCap),
	}
}

// Clone deep-copies the snapshot so stores can hand out isolated copies.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Log = s.Log.Clone()
	return &clone
}
