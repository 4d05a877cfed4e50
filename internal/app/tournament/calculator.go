package tournament

// MatchResult is the pairing of one round.
type MatchResult struct {
	Pairs []*ContestantPair
}

// AdvanceRound pairs contestants for a single-elimination round. Consecutive contestants
// play each other. With an odd count the bye goes to the contestant with the fewest byes
// so far, ties going to the one placed last, and the bye pair is emitted after the real ones.
// Counters are not touched.
func AdvanceRound(contestants []*Contestant) MatchResult {
	rest := append([]*Contestant(nil), contestants...)
	var bye *Contestant
	if len(rest)%2 == 1 {
		idx := len(rest) - 1
		for i := len(rest) - 1; i >= 0; i-- {
			if rest[i].Byes < rest[idx].Byes {
				idx = i
			}
		}
		bye = rest[idx]
		rest = append(rest[:idx], rest[idx+1:]...)
	}

	result := MatchResult{Pairs: make([]*ContestantPair, 0, len(rest)/2+1)}
	for i := 0; i+1 < len(rest); i += 2 {
		result.Pairs = append(result.Pairs, &ContestantPair{C1: rest[i], C2: rest[i+1]})
	}
	if bye != nil {
		result.Pairs = append(result.Pairs, &ContestantPair{C1: bye})
	}
	return result
}

// CalculateContestants partitions players into contestant groups.
//
// The group size starts at maxSize and shrinks while fewer than required groups would
// form. Leftover players become a group of their own when there are at least minSize
// of them, otherwise they are dealt round-robin onto the existing groups. When the group
// count ends up a power of two above one, all players are dealt again evenly with the
// larger groups first. Other counts are left as they are.
func CalculateContestants(players []string, maxSize, minSize, required int) [][]string {
	if len(players) == 0 {
		return nil
	}
	if maxSize < 1 {
		maxSize = 1
	}
	if minSize < 1 {
		minSize = 1
	}

	size := maxSize
	count := len(players) / size
	for count < required && size > 1 {
		size--
		count = len(players) / size
	}

	groups := make([][]string, 0, count+1)
	for i := 0; i < count; i++ {
		groups = append(groups, append([]string(nil), players[i*size:(i+1)*size]...))
	}
	remainder := players[count*size:]
	if len(remainder) > 0 {
		if len(remainder) >= minSize || len(groups) == 0 {
			groups = append(groups, append([]string(nil), remainder...))
		} else {
			for i, id := range remainder {
				g := i % len(groups)
				groups[g] = append(groups[g], id)
			}
		}
	}

	if n := len(groups); n > 1 && n&(n-1) == 0 {
		groups = spreadEvenly(groups)
	}
	return groups
}

func spreadEvenly(groups [][]string) [][]string {
	var all []string
	for _, g := range groups {
		all = append(all, g...)
	}
	n := len(groups)
	base, extra := len(all)/n, len(all)%n
	out := make([][]string, n)
	pos := 0
	for i := range out {
		size := base
		if i < extra {
			size++
		}
		out[i] = append([]string(nil), all[pos:pos+size]...)
		pos += size
	}
	return out
}
