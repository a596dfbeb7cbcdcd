package storage

import (
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/spf13/afero"
)

// BloomFilter implements repository.SeenFilter using Bloom filter
type BloomFilter struct {
	fs     afero.Fs
	filter *bloom.BloomFilter
	size   uint
	fpRate float64
	mu     sync.Mutex
}

// Config holds Bloom filter configuration
type Config struct {
	Size              uint
	FalsePositiveRate float64
}

// NewBloomFilter creates a new Bloom filter persisted on fs
func NewBloomFilter(fs afero.Fs, config Config) *BloomFilter {
	return &BloomFilter{
		fs:     fs,
		filter: bloom.NewWithEstimates(config.Size, config.FalsePositiveRate),
		size:   config.Size,
		fpRate: config.FalsePositiveRate,
	}
}

// TestAndAdd reports whether url was probably seen before and adds it
func (bf *BloomFilter) TestAndAdd(url string) bool {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.filter.TestAndAdd([]byte(url))
}

// Save persists the filter state
func (bf *BloomFilter) Save(filename string) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	file, err := bf.fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = bf.filter.WriteTo(file)
	return err
}

// Load restores the filter state
func (bf *BloomFilter) Load(filename string) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	file, err := bf.fs.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist yet, that's OK
		}
		return err
	}
	defer file.Close()

	bf.filter = bloom.NewWithEstimates(bf.size, bf.fpRate)
	_, err = bf.filter.ReadFrom(file)
	return err
}
