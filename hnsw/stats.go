package hnsw

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Nodes              int `json:"nodes"`
	Connections        int `json:"connections"`
	AverageConnections int `json:"averageConnections"`
}

// Stats summarizes the shape of the graph.
type Stats struct {
	Dimension int          `json:"dimension"`
	Metric    string       `json:"metric"`
	Nodes     int          `json:"nodes"`
	EntryNode uint32       `json:"entryNode"`
	MaxLevel  int          `json:"maxLevel"`
	Levels    []LevelStats `json:"levels"`
}

// Stats returns statistics about the HNSW graph
func (h *HNSW) Stats() Stats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	s := Stats{
		Dimension: h.dimension,
		Metric:    h.opts.Metric.String(),
		Nodes:     len(h.nodes),
		EntryNode: h.ep,
		MaxLevel:  h.maxLevel,
	}

	if len(h.nodes) == 0 {
		return s
	}

	s.Levels = make([]LevelStats, h.maxLevel+1)

	for _, node := range h.nodes {
		for level := node.Layer; level >= 0; level-- {
			s.Levels[level].Nodes++
			s.Levels[level].Connections += len(node.Connections[level])
		}
	}

	for i := range s.Levels {
		s.Levels[i].AverageConnections = s.Levels[i].Connections / max(1, s.Levels[i].Nodes)
	}

	return s
}
