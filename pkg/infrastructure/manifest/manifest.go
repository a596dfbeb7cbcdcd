// Package manifest parses the per-dataset file listings published by the
// repository and joins them into file records.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
)

const (
	// FileListName lists remote paths and sizes
	FileListName = "filelist.txt"
	// ChecksumsName lists md5 checksums and names
	ChecksumsName = "checksums.md5"
)

// JoinMode selects how checksums are paired with listed files
type JoinMode string

const (
	// JoinPositional pairs the i-th checksum with the i-th listed file
	JoinPositional JoinMode = "positional"
	// JoinByName pairs a checksum with the file carrying the same name
	JoinByName JoinMode = "by-name"
)

// ListedFile is one line of filelist.txt
type ListedFile struct {
	Path string
	Size uint64
}

// Checksum is one line of checksums.md5
type Checksum struct {
	Sum  string
	Name string
}

// ParseFileList reads filelist.txt. Comment lines, blank lines, lines with
// fewer than two fields and lines whose size is not an unsigned integer
// are skipped; the skipped count is returned.
func ParseFileList(r io.Reader) ([]ListedFile, int, error) {
	var (
		files   []ListedFile
		skipped int
	)
	err := eachLine(r, func(line string, tooLong bool) {
		if tooLong {
			skipped++
			return
		}
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			skipped++
			return
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			skipped++
			return
		}
		files = append(files, ListedFile{Path: fields[0], Size: size})
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("read %s: %w", FileListName, err)
	}
	return files, skipped, nil
}

// ParseChecksums reads checksums.md5 in md5sum output format
func ParseChecksums(r io.Reader) ([]Checksum, int, error) {
	var (
		sums    []Checksum
		skipped int
	)
	err := eachLine(r, func(line string, tooLong bool) {
		if tooLong {
			skipped++
			return
		}
		if strings.TrimSpace(line) == "" {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			skipped++
			return
		}
		sums = append(sums, Checksum{Sum: fields[0], Name: fields[1]})
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("read %s: %w", ChecksumsName, err)
	}
	return sums, skipped, nil
}

// maxLineLength caps a single manifest line. Longer lines are skipped
// without being buffered whole.
const maxLineLength = 1024 * 1024

// eachLine calls fn once per line of r, with the line terminator removed.
// Lines longer than maxLineLength are passed as empty with tooLong set.
func eachLine(r io.Reader, fn func(line string, tooLong bool)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineLength {
				tooLong, buf = true, buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if isPrefix {
			continue
		}
		fn(string(buf), tooLong)
		buf, tooLong = buf[:0], false
	}
}

// Join builds the manifest of a dataset stored in dir. In positional mode
// the result is as long as the shorter input.
func Join(dir string, files []ListedFile, sums []Checksum, mode JoinMode) entity.FileManifest {
	switch mode {
	case JoinPositional:
		n := min(len(files), len(sums))
		manifest := make(entity.FileManifest, 0, n)
		for i := 0; i < n; i++ {
			manifest = append(manifest, record(dir, files[i], sums[i].Sum))
		}
		return manifest
	default:
		byName := make(map[string]string, len(sums))
		for _, s := range sums {
			byName[normalizeName(s.Name)] = s.Sum
		}
		manifest := make(entity.FileManifest, 0, len(files))
		for _, f := range files {
			manifest = append(manifest, record(dir, f, byName[normalizeName(f.Path)]))
		}
		return manifest
	}
}

func record(dir string, f ListedFile, sum string) entity.FileRecord {
	return entity.FileRecord{
		RemotePath:     f.Path,
		RemoteSize:     f.Size,
		RemoteChecksum: sum,
		LocalPath:      filepath.Join(dir, filepath.FromSlash(f.Path)),
		Extension:      entity.ExtensionOf(f.Path),
	}
}

// normalizeName strips md5sum's binary marker and a leading "./"
func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "*")
	return path.Clean(strings.TrimPrefix(name, "./"))
}
