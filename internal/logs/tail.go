package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// Options controls a single Tail call.
//
// Offset < 0 requests the last Limit lines of the file. Offset >= 0 resumes
// reading from that byte position, which lets a follower pass the Offset of
// the previous Result back in.
type Options struct {
	Offset int64
	Limit  int
	// Wait bounds how long Tail blocks for new lines when the offset is
	// already at the end of the file. Zero returns immediately.
	Wait time.Duration
}

// Result carries the lines read and the byte offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// Tail reads log lines from path according to opts.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	if opts.Offset < 0 {
		return lastLines(path, opts.Limit)
	}

	res, err := readFrom(path, opts.Offset, opts.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(res.Lines) > 0 || opts.Wait <= 0 {
		return res, nil
	}
	return waitForLines(ctx, path, res.Offset, opts.Limit, opts.Wait)
}

// lastLines returns the final limit lines of the file along with the offset
// at end of file.
func lastLines(path string, limit int) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	ring := make([]string, limit)
	count := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%limit] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("scan log file: %w", err)
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return Result{}, fmt.Errorf("seek log file: %w", err)
	}

	n := count
	if n > limit {
		n = limit
	}
	lines := make([]string, 0, n)
	for i := count - n; i < count; i++ {
		lines = append(lines, ring[i%limit])
	}
	return Result{Lines: lines, Offset: offset}, nil
}

// readFrom reads up to limit complete lines starting at offset. A trailing
// partial line is left unread so the follower picks it up once the writer
// finishes it.
func readFrom(path string, offset int64, limit int) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Offset: offset}, nil
		}
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return Result{}, fmt.Errorf("seek log file: %w", err)
	}
	if offset > size {
		// Truncated or rotated out from under us; start over.
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, 0, limit)
	reader := bufio.NewReader(file)
	pos := offset
	for len(lines) < limit {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Result{}, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		lines = append(lines, trimNewline(line))
	}
	return Result{Lines: lines, Offset: pos}, nil
}

// waitForLines polls the file until new lines appear, the wait budget runs
// out, or ctx is done.
func waitForLines(ctx context.Context, path string, offset int64, limit int, wait time.Duration) (Result, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Offset: offset}, ctx.Err()
		case <-ticker.C:
			res, err := readFrom(path, offset, limit)
			if err != nil {
				return Result{}, err
			}
			if len(res.Lines) > 0 || time.Now().After(deadline) {
				return res, nil
			}
			offset = res.Offset
		}
	}
}

func trimNewline(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
