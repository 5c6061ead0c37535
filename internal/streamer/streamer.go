// Package streamer delivers a file as an ordered sequence of fixed-size chunks,
// yielding to the scheduler between chunks.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/temirov/reposcope/internal/failure"
)

// DefaultChunkSize is used when a non-positive chunk size is requested.
const DefaultChunkSize = 8192

const (
	errorMissingFileFormat = "file %s does not exist"
	errorNotRegularFormat  = "%s is not a regular file"
	errorStatFormat        = "inspecting %s"
	errorOpenFormat        = "opening %s: %w"
	errorReadFormat        = "reading %s: %w"
)

// ChunkVisitor receives each chunk in order. The slice is owned by the visitor.
// Returning an error stops the stream and surfaces that error.
type ChunkVisitor func(chunk []byte) error

// Stream is a restartable chunked view of one regular file.
type Stream struct {
	Name      string
	Size      int64
	path      string
	chunkSize int
}

// Open validates that path names an existing regular file.
func Open(path string, chunkSize int) (*Stream, error) {
	fileInformation, statError := os.Stat(path)
	if statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return nil, failure.Newf(failure.KindNotFound, errorMissingFileFormat, filepath.Base(path))
		}
		return nil, failure.New(failure.KindInternal, fmt.Sprintf(errorStatFormat, filepath.Base(path)), statError)
	}
	if !fileInformation.Mode().IsRegular() {
		return nil, failure.Newf(failure.KindInvalidTarget, errorNotRegularFormat, filepath.Base(path))
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Stream{
		Name:      fileInformation.Name(),
		Size:      fileInformation.Size(),
		path:      path,
		chunkSize: chunkSize,
	}, nil
}

// ChunkSize reports the configured chunk size.
func (stream *Stream) ChunkSize() int {
	return stream.chunkSize
}

// Each reads the file from the beginning and hands every chunk to visitor.
// Every chunk except possibly the last has exactly ChunkSize bytes and no
// chunk is empty. The context is checked before each read.
func (stream *Stream) Each(ctx context.Context, visitor ChunkVisitor) error {
	fileHandle, openError := os.Open(stream.path)
	if openError != nil {
		if errors.Is(openError, fs.ErrNotExist) {
			return failure.Newf(failure.KindNotFound, errorMissingFileFormat, stream.Name)
		}
		return fmt.Errorf(errorOpenFormat, stream.Name, openError)
	}
	defer fileHandle.Close()

	buffer := make([]byte, stream.chunkSize)
	for {
		if contextError := ctx.Err(); contextError != nil {
			return contextError
		}
		bytesRead, readError := io.ReadFull(fileHandle, buffer)
		if bytesRead > 0 {
			chunk := make([]byte, bytesRead)
			copy(chunk, buffer[:bytesRead])
			if visitError := visitor(chunk); visitError != nil {
				return visitError
			}
		}
		if errors.Is(readError, io.EOF) || errors.Is(readError, io.ErrUnexpectedEOF) {
			return nil
		}
		if readError != nil {
			return fmt.Errorf(errorReadFormat, stream.Name, readError)
		}
		runtime.Gosched()
	}
}

// WriteTo copies the file to writer chunk by chunk, flushing after every
// chunk when writer supports it, and returns the number of bytes written.
func (stream *Stream) WriteTo(ctx context.Context, writer io.Writer) (int64, error) {
	flusher, canFlush := writer.(http.Flusher)
	var written int64
	streamError := stream.Each(ctx, func(chunk []byte) error {
		bytesWritten, writeError := writer.Write(chunk)
		written += int64(bytesWritten)
		if writeError != nil {
			return writeError
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	return written, streamError
}
