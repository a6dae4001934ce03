package tokenizer

// encodeBytes runs standard byte-level BPE: start with one token per byte,
// then repeatedly merge the adjacent pair with the lowest rank until no
// known pair remains. Every byte value has a token, so the result is total
// and lossless regardless of merge-table coverage.
func (v *vocab) encodeBytes(data []byte) []int {
	if len(data) == 0 {
		return nil
	}
	ids := make([]int, len(data))
	for i, b := range data {
		ids[i] = v.byteBase + int(b)
	}

	for {
		bestRank := -1
		bestPos := -1
		for i := 0; i < len(ids)-1; i++ {
			p := pair{ids[i], ids[i+1]}
			if rank, ok := v.mergeRank[p]; ok {
				if bestRank == -1 || rank < bestRank {
					bestRank = rank
					bestPos = i
				}
			}
		}
		if bestPos == -1 {
			break
		}
		merged := v.mergedID[pair{ids[bestPos], ids[bestPos+1]}]
		ids = append(ids[:bestPos], append([]int{merged}, ids[bestPos+2:]...)...)
	}
	return ids
}

// decodeBytes expands a token-id sequence back to bytes by recursively
// unfolding merges until only byte tokens remain.
func (v *vocab) decodeBytes(ids []int) []byte {
	var out []byte
	for _, id := range ids {
		out = append(out, v.expand(id)...)
	}
	return out
}

func (v *vocab) expand(id int) []byte {
	if id >= v.byteBase && id < v.byteBase+256 {
		return []byte{byte(id - v.byteBase)}
	}
	if p, ok := v.idToPair[id]; ok {
		return append(v.expand(p.left), v.expand(p.right)...)
	}
	// Unknown id: not produced by this vocabulary. It expands to no bytes,
	// so Decode drops it without reporting an error.
	return nil
}
