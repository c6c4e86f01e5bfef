package logscan

import (
	"io"
	"os"
	"strings"
)

const tailChunkSize = 8192

// TailLines returns up to n trailing lines of the file at path, oldest first.
// The file is read backwards in chunks so large worker logs are never loaded
// whole. A missing file yields (nil, nil).
func TailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		buf     []byte
		offset  = size
		chunk   = make([]byte, tailChunkSize)
		needed  = n + 1 // one extra newline so the first kept line is complete
		entries []string
	)
	for offset > 0 {
		readLen := int64(len(chunk))
		if offset < readLen {
			readLen = offset
		}
		offset -= readLen
		if _, err := f.ReadAt(chunk[:readLen], offset); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(append([]byte{}, chunk[:readLen]...), buf...)
		if countNewlines(buf) >= needed {
			break
		}
	}

	entries = strings.Split(string(buf), "\n")
	// drop trailing empty element from a final newline
	if len(entries) > 0 && entries[len(entries)-1] == "" {
		entries = entries[:len(entries)-1]
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func countNewlines(b []byte) int {
	c := 0
	for _, ch := range b {
		if ch == '\n' {
			c++
		}
	}
	return c
}
