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

package core

const (
	// KeyNameDefault names the key field when none is configured.
	KeyNameDefault = "key"
	// CntNameDefault names the count field when none is configured.
	CntNameDefault = "cnt"
)

// MergeConfig names the two record fields the merge reads and writes.
// It is immutable for the duration of a run and shared by every input.
type MergeConfig struct {
	KeyName string
	CntName string
}

// DefaultMergeConfig returns the configuration with the default field names.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		KeyName: KeyNameDefault,
		CntName: CntNameDefault,
	}
}
