// Copyright 2025 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"io"
	"os"

	pb "gopkg.in/cheggaaa/pb.v1"
)

// progressBar is an instance of ReadCloser with an associated ProgressBar.
// Closing this instance closes the delegate as well as clearing the terminal
// line of progress output.
type progressBar struct {
	r   io.ReadCloser
	bar *pb.ProgressBar
	out io.Writer
}

// WrapInputFile wraps f with a ProgressBar, drawn on out, that tracks the
// bytes read relative to the size of f. Stdin and a nil out are not wrapped.
func WrapInputFile(f *os.File, out io.Writer) (io.ReadCloser, error) {
	if f == os.Stdin || out == nil {
		return f, nil
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	bar := pb.New64(fi.Size()).SetUnits(pb.U_BYTES_DEC).SetWidth(79)
	bar.Output = out
	bar.Start()

	return progressBar{
		r:   bar.NewProxyReader(f),
		bar: bar,
		out: out,
	}, nil
}

// Read implements io.Reader.Read by simple delegation.
func (p progressBar) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Close implements io.Closer.Close by closing the delegate instance of
// ReadCloser as well as clearing the terminal line of progress output.
func (p progressBar) Close() error {
	// make sure newline is not printed by Finish()
	p.bar.Output = nil
	p.bar.NotPrint = true

	p.bar.Finish()

	fmt.Fprintf(p.out, "\033[2K\r") // clear status bar

	return p.r.Close()
}
