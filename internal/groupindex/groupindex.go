// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package groupindex implements a hashed index over a small, per-worker
// string universe (cell barcodes, sample IDs, UMIs seen at one SNV),
// paired with an insertion-order vector so callers can both test
// membership in O(1) and later walk entries in first-seen order.
//
// Unlike bamprovider's concurrentMap, which this package's bucket
// placement is modeled on, an Index is never shared across goroutines:
// each pileup worker owns one, so no locking is needed.
package groupindex

import "github.com/blainsmith/seahash"

const minBuckets = 16

// Index is a hashed set of strings with stable insertion order.
type Index struct {
	buckets []int32 // bucket -> index into order+1, 0 means empty
	order   []string
	mask    uint64
}

// New returns an empty Index pre-sized for an expected population of n
// entries.
func New(n int) *Index {
	nb := minBuckets
	for nb < n*2 {
		nb *= 2
	}
	return &Index{
		buckets: make([]int32, nb),
		mask:    uint64(nb - 1),
	}
}

func (x *Index) bucketFor(s string) int {
	h := seahash.Sum64([]byte(s))
	i := int(h & x.mask)
	for x.buckets[i] != 0 {
		if x.order[x.buckets[i]-1] == s {
			return i
		}
		i = (i + 1) & int(x.mask)
	}
	return i
}

// Seen reports whether s has already been inserted.
func (x *Index) Seen(s string) bool {
	i := x.bucketFor(s)
	return x.buckets[i] != 0
}

// Insert adds s to the index if not already present, and reports whether
// this call actually inserted it (false means s was already present).
func (x *Index) Insert(s string) bool {
	if x.len()*2 >= len(x.buckets) {
		x.grow()
	}
	i := x.bucketFor(s)
	if x.buckets[i] != 0 {
		return false
	}
	x.order = append(x.order, s)
	x.buckets[i] = int32(len(x.order))
	return true
}

func (x *Index) len() int { return len(x.order) }

// Len returns the number of distinct strings inserted so far.
func (x *Index) Len() int { return len(x.order) }

// Order returns the inserted strings in first-seen order. The returned
// slice must not be modified.
func (x *Index) Order() []string { return x.order }

// Reset clears the index for reuse, retaining its backing storage so a
// worker can reuse the same Index across SNVs without reallocating.
func (x *Index) Reset() {
	for i := range x.buckets {
		x.buckets[i] = 0
	}
	x.order = x.order[:0]
}

func (x *Index) grow() {
	old := x.order
	nb := len(x.buckets) * 2
	x.buckets = make([]int32, nb)
	x.mask = uint64(nb - 1)
	x.order = make([]string, 0, nb/2)
	for _, s := range old {
		i := x.bucketFor(s)
		x.order = append(x.order, s)
		x.buckets[i] = int32(len(x.order))
	}
}
