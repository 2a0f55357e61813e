package util

// HashTable is an open-addressing hash table with linear reprobing, sized
// according to Knuth's prime-pair growth rule (each grow step roughly
// doubles capacity and rounds to a nearby prime so the reprobe sequence
// stays well distributed). Keys are pre-hashed 32-bit values (callers
// typically feed XXHash32 output) paired with an opaque value.
//
// Grounded on include/util/hash_table.h (original_source): a fixed-size
// bucket array, tombstone-free linear probing, and explicit grow-on-load.
type HashTable[V any] struct {
	buckets []htBucket[V]
	count   int
}

type htBucket[V any] struct {
	used bool
	hash uint32
	val  V
}

// knuth primes, each roughly double the previous, used for successive grows.
var htSizes = []int{17, 37, 79, 163, 331, 673, 1361, 2729, 5471, 10949,
	21911, 43853, 87719, 175447, 350899, 701819, 1403641, 2807303}

func NewHashTable[V any]() *HashTable[V] {
	return &HashTable[V]{buckets: make([]htBucket[V], htSizes[0])}
}

func (h *HashTable[V]) nextSize() int {
	for _, s := range htSizes {
		if s > len(h.buckets) {
			return s
		}
	}
	return len(h.buckets)*2 + 1
}

func (h *HashTable[V]) grow() {
	old := h.buckets
	h.buckets = make([]htBucket[V], h.nextSize())
	h.count = 0
	for _, b := range old {
		if b.used {
			h.insert(b.hash, b.val)
		}
	}
}

func (h *HashTable[V]) loadFactor() float64 {
	return float64(h.count) / float64(len(h.buckets))
}

func (h *HashTable[V]) insert(hash uint32, val V) {
	if h.loadFactor() > 0.75 {
		h.grow()
	}
	idx := int(hash) % len(h.buckets)
	for h.buckets[idx].used {
		idx = (idx + 1) % len(h.buckets)
	}
	h.buckets[idx] = htBucket[V]{used: true, hash: hash, val: val}
	h.count++
}

// Insert adds val under hash. Duplicate hashes are allowed; use Lookup's
// match callback to disambiguate (e.g. compare full block content).
func (h *HashTable[V]) Insert(hash uint32, val V) {
	h.insert(hash, val)
}

// Lookup scans every bucket sharing hash and calls match on each candidate
// value; it returns the first value for which match returns true.
func (h *HashTable[V]) Lookup(hash uint32, match func(V) bool) (V, bool) {
	idx := int(hash) % len(h.buckets)
	start := idx
	for h.buckets[idx].used {
		if h.buckets[idx].hash == hash && match(h.buckets[idx].val) {
			return h.buckets[idx].val, true
		}
		idx = (idx + 1) % len(h.buckets)
		if idx == start {
			break
		}
	}
	var zero V
	return zero, false
}

func (h *HashTable[V]) Len() int { return h.count }
