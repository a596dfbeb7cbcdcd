package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/spf13/afero"
)

// Verify fills the local size and checksum of r from the file at
// r.LocalPath. A missing file leaves both empty and is not an error.
func Verify(fs afero.Fs, r entity.FileRecord) (entity.FileRecord, error) {
	f, err := fs.Open(r.LocalPath)
	if err != nil {
		if exists, _ := afero.Exists(fs, r.LocalPath); !exists {
			return r, nil
		}
		return r, fmt.Errorf("open %s: %w", r.LocalPath, err)
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return r, fmt.Errorf("hash %s: %w", r.LocalPath, err)
	}
	r.LocalSize = uint64(n)
	r.LocalChecksum = hex.EncodeToString(h.Sum(nil))
	return r, nil
}
