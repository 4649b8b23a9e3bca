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

package readers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aaronlmathis/avromerge/core"
)

// Opener opens a named input as a byte stream.
// Failures are core.ErrIO errors that carry the name.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// OpenerFunc is a function adapter for the Opener interface.
type OpenerFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Open implements the Opener interface for OpenerFunc.
func (f OpenerFunc) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return f(ctx, name)
}

// FileOpener opens local files.
type FileOpener struct{}

// Open implements the Opener interface.
func (FileOpener) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, core.NewSubjectError(core.ErrIO, "open_file", name, err)
	}
	return f, nil
}

// SchemeOpener routes s3:// names to S3 and everything else to Local.
type SchemeOpener struct {
	Local Opener
	S3    Opener
}

// Open implements the Opener interface.
func (s SchemeOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if IsS3URI(name) {
		if s.S3 == nil {
			return nil, core.NewSubjectError(core.ErrIO, "open_object", name, fmt.Errorf("no s3 access configured"))
		}
		return s.S3.Open(ctx, name)
	}
	if s.Local == nil {
		return FileOpener{}.Open(ctx, name)
	}
	return s.Local.Open(ctx, name)
}
