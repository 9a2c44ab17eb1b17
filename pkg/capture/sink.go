package capture

import (
	"io"
	"os"
)

// StdoutName is the destination name that selects standard output.
const StdoutName = "-"

type SinkOptions struct {
	// NoClobber refuses to overwrite an existing output file.
	NoClobber bool
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// OpenSink selects the output stream once, before streaming starts. Standard
// output is wrapped so that closing the sink leaves the process stream open.
func OpenSink(name string, opts SinkOptions) (io.WriteCloser, error) {
	if name == StdoutName {
		return nopCloser{os.Stdout}, nil
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.NoClobber {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return nil, newError(StageSink, "open "+name, err)
	}
	return f, nil
}

// SinkWriter forwards whole frames to the sink and treats any partial write as
// fatal. Partial frames are never retried.
type SinkWriter struct {
	w   io.Writer
	res Resolution
}

func NewSinkWriter(w io.Writer, res Resolution) *SinkWriter {
	return &SinkWriter{w: w, res: res}
}

func (s *SinkWriter) Write(frame []byte) (int, error) {
	n, err := s.w.Write(frame)
	if n != len(frame) {
		return n, newError(StageSink, "write", &ShortWriteError{
			Resolution: s.res,
			Wanted:     len(frame),
			Written:    n,
			Err:        err,
		})
	}
	if err != nil {
		return n, newError(StageSink, "write", err)
	}
	return n, nil
}
