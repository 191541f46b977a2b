package evaluate

import (
	"github.com/rotisserie/eris"

	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

// FragmentationReport measures how broken-up an assignment is on the map.
// A cluster in p contiguous pieces contributes p-1; zero total means every
// cluster is one connected area.
type FragmentationReport struct {
	Total   int         `json:"total"`
	ByLabel map[int]int `json:"by_label,omitempty"`
}

// Fragmentation counts, per cluster, the connected components its regions
// induce on the contiguity graph. ByLabel holds only clusters with extra
// pieces.
func Fragmentation(labels []int, nb *weights.Neighborhood) (*FragmentationReport, error) {
	if len(labels) != nb.Len() {
		return nil, eris.Errorf("evaluate: %d labels for %d regions", len(labels), nb.Len())
	}
	k, err := checkComplete(labels)
	if err != nil {
		return nil, err
	}

	rep := &FragmentationReport{ByLabel: make(map[int]int)}
	visited := make([]bool, nb.Len())
	for label := 1; label <= k; label++ {
		pieces := 0
		for start := 0; start < nb.Len(); start++ {
			if labels[start] != label || visited[start] {
				continue
			}
			pieces++
			queue := []int{start}
			visited[start] = true
			for len(queue) > 0 {
				u := queue[0]
				queue = queue[1:]
				for _, v := range nb.AdjacentIdx(u) {
					if labels[v] == label && !visited[v] {
						visited[v] = true
						queue = append(queue, v)
					}
				}
			}
		}
		if pieces > 1 {
			rep.ByLabel[label] = pieces - 1
			rep.Total += pieces - 1
		}
	}
	return rep, nil
}
