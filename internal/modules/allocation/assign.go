package allocation

// AssignUnits hands specific unit ids to handlers once integer counts are known.
// order and counts are aligned (rank order). holder maps a unit to its current handler.
// Each handler first keeps its own units, then deficits are filled from the
// rest of the pool in rank order, so unchanged handlers keep exactly their units.
func AssignUnits(order []string, counts []int, holder map[string]string, pool []string) map[string][]string {
	out := make(map[string][]string, len(order))
	want := make(map[string]int, len(order))
	for i, h := range order {
		want[h] += counts[i]
	}

	taken := make([]bool, len(pool))
	for _, h := range order {
		for i, id := range pool {
			if len(out[h]) >= want[h] {
				break
			}
			if !taken[i] && holder[id] == h {
				out[h] = append(out[h], id)
				taken[i] = true
			}
		}
	}

	next := 0
	for _, h := range order {
		for len(out[h]) < want[h] && next < len(pool) {
			if !taken[next] {
				out[h] = append(out[h], pool[next])
				taken[next] = true
			}
			next++
		}
	}

	return out
}
