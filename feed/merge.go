package feed

import (
	"container/heap"

	"github.com/GetStream/party-engagement/party"
)

// Merge combines sequences that are each already in feed order into one
// sequence in feed order. It runs in O(n log k) for n items in k sources and
// does not modify the sources. The Composer merges one source per payload
// kind, so there k is at most len(party.PayloadKinds) and a page costs
// O(limit).
func Merge(sources ...[]party.FeedItem) []party.FeedItem {
	return merge(sources, -1)
}

// merge returns at most limit items of the merged sources; a negative limit
// returns all of them.
func merge(sources [][]party.FeedItem, limit int) []party.FeedItem {
	total := 0
	h := make(heads, 0, len(sources))
	for _, src := range sources {
		if len(src) > 0 {
			h = append(h, head{items: src})
			total += len(src)
		}
	}
	if limit >= 0 && limit < total {
		total = limit
	}
	if total == 0 {
		return nil
	}

	heap.Init(&h)
	out := make([]party.FeedItem, 0, total)
	for len(out) < total {
		top := &h[0]
		out = append(out, top.items[top.pos])
		top.pos++
		if top.pos == len(top.items) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

type head struct {
	items []party.FeedItem
	pos   int
}

// heads is a heap of source cursors ordered by their current item.
type heads []head

func (h heads) Len() int           { return len(h) }
func (h heads) Less(i, j int) bool { return h[i].items[h[i].pos].Before(h[j].items[h[j].pos]) }
func (h heads) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *heads) Push(x any) { *h = append(*h, x.(head)) }

func (h *heads) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
