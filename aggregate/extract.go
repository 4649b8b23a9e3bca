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
	"fmt"
	"math"

	"github.com/aaronlmathis/avromerge/core"
)

// Extract turns one decoded record into a (key, count) pair.
//
// Fields are scanned once, in record order. A string field named cfg.KeyName sets the key;
// any other field named cfg.CntName is coerced and sets the count. Later matches overwrite
// earlier ones. A record with no key field yields the empty key and one with no count field
// yields zero.
//
// TODO: the silent defaults for a missing key or count keep compatibility with existing
// count files; a strict mode that rejects such records is the planned alternative.
func Extract(cfg core.MergeConfig, rec core.Record) (Pair, error) {
	var p Pair
	for _, f := range rec {
		if s, ok := f.Value.(core.String); ok && f.Name == cfg.KeyName {
			p.Key = string(s)
			continue
		}
		if f.Name == cfg.CntName {
			n, err := Coerce(f.Value)
			if err != nil {
				return Pair{}, err
			}
			p.Count = n
		}
	}
	return p, nil
}

// ExtractValue is Extract for a top-level decoded value, which must be a record.
func ExtractValue(cfg core.MergeConfig, v core.Value) (Pair, error) {
	rec, ok := v.(core.Record)
	if !ok {
		return Pair{}, core.NewError(core.ErrExtract, "extract_record", fmt.Errorf("%w: %v", core.ErrInvalidValueType, v))
	}
	return Extract(cfg, rec)
}

// Coerce converts a count value to int64. Integers widen, floats truncate toward zero and
// union branches are unwrapped recursively. Anything else is an extraction error that
// renders the offending value.
func Coerce(v core.Value) (int64, error) {
	switch n := v.(type) {
	case core.Int32:
		return int64(n), nil
	case core.Int64:
		return int64(n), nil
	case core.Float32:
		return truncate(float64(n)), nil
	case core.Float64:
		return truncate(float64(n)), nil
	case core.Optional:
		if n.Value == nil {
			break
		}
		return Coerce(n.Value)
	}
	return 0, core.NewError(core.ErrExtract, "coerce_count", fmt.Errorf("%w: %v", core.ErrInvalidValueType, v))
}

// truncate drops the fraction of f. NaN becomes 0 and out-of-range values saturate.
func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= float64(math.MaxInt64):
		return math.MaxInt64
	case f <= float64(math.MinInt64):
		return math.MinInt64
	}
	return int64(f)
}
