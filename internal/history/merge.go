package history

// Merge combines a locally cached summary list with a server-fetched one
// into a single deduplicated list. Server entries come first, in the order
// received; local entries whose identifier the server already reported are
// dropped (the server's version wins), the rest follow in their local
// order. No timestamp sort happens: identical inputs always produce
// identical output.
func Merge(local, server []Summary) []Summary {
	merged := make([]Summary, 0, len(server)+len(local))
	seen := make(map[string]struct{}, len(server)+len(local))

	for _, s := range server {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		merged = append(merged, s)
	}

	for _, l := range local {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		merged = append(merged, l)
	}

	return merged
}
