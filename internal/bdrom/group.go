package bdrom

import "sort"

// SortPlaylists orders playlists longest first, then by name.
func SortPlaylists(playlists []*Playlist) {
	sort.SliceStable(playlists, func(i, j int) bool {
		a, b := playlists[i], playlists[j]
		if a.totalTicks != b.totalTicks {
			return a.totalTicks > b.totalTicks
		}
		return a.Name < b.Name
	})
}

// GroupPlaylists partitions playlists so that playlists sharing any stream
// clip land in the same group. Groups keep SortPlaylists order internally
// and are ordered by their first member.
func GroupPlaylists(playlists []*Playlist) [][]*Playlist {
	sorted := append([]*Playlist(nil), playlists...)
	SortPlaylists(sorted)

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	owner := make(map[string]int)
	for i, pl := range sorted {
		for _, name := range pl.ClipNames() {
			if j, ok := owner[name]; ok {
				union(i, j)
				continue
			}
			owner[name] = i
		}
	}

	index := make(map[int]int)
	var groups [][]*Playlist
	for i, pl := range sorted {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], pl)
	}
	return groups
}
