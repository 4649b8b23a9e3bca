//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AvroMerge.
//
// AvroMerge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AvroMerge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AvroMerge. If not, see https://www.gnu.org/licenses/.

package aggregate

import (
	"iter"
	"maps"
	"slices"
)

// Pair is one (key, count) outcome of extracting a record.
type Pair struct {
	Key   string
	Count int64
}

// Table is the accumulator: a key to running-sum mapping that is read back in ascending
// key order. A Table is owned by one pipeline at a time and is not safe for concurrent use.
type Table struct {
	sums map[string]int64
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{sums: make(map[string]int64)}
}

// Add folds one pair into the table. A new key starts at count; an existing key has
// count added to its sum with ordinary int64 (wrapping) addition.
func (t *Table) Add(key string, count int64) {
	t.sums[key] += count
}

// MergePairs folds every pair of the sequence into the table. It stops at the first
// error the sequence yields and returns it; pairs seen before the error stay folded.
func (t *Table) MergePairs(pairs iter.Seq2[Pair, error]) error {
	for p, err := range pairs {
		if err != nil {
			return err
		}
		t.Add(p.Key, p.Count)
	}
	return nil
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	return len(t.sums)
}

// Get returns the sum for key.
func (t *Table) Get(key string) (int64, bool) {
	v, ok := t.sums[key]
	return v, ok
}

// Keys returns the keys in ascending byte-wise lexicographic order.
func (t *Table) Keys() []string {
	return slices.Sorted(maps.Keys(t.sums))
}

// All yields every (key, sum) in ascending key order. The order is a format contract
// for every sink, so it must not depend on map iteration.
func (t *Table) All() iter.Seq2[string, int64] {
	keys := t.Keys()
	return func(yield func(string, int64) bool) {
		for _, k := range keys {
			if !yield(k, t.sums[k]) {
				return
			}
		}
	}
}
