package dispatch

// Decomposer maps the session query to one sub-query per backend
type Decomposer interface {
	Decompose(query string, backends []string) map[string]string
}

// Broadcast hands every backend the full query unchanged
type Broadcast struct{}

func (Broadcast) Decompose(query string, backends []string) map[string]string {
	out := make(map[string]string, len(backends))
	for _, b := range backends {
		out[b] = query
	}
	return out
}
