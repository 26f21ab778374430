package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// NoEntry is the label an Index returns for result slots it could not fill.
const NoEntry int64 = -1

// Index is a similarity index over unit vectors. Labels are insertion
// positions. Implementations other than FlatIndex (approximate indexes) may be
// swapped in as long as Search keeps the ordering contract.
type Index interface {
	// Add appends vectors; the first added vector gets label Count().
	Add(vectors [][]float32) error

	// Search returns at most min(k, Count()) labels and inner-product
	// scores, best first. Approximate implementations may report NoEntry
	// for slots they could not fill.
	Search(query []float32, k int) (labels []int64, scores []float64)

	Count() int
	Dimension() int

	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

var flatMagic = [4]byte{'F', 'I', 'D', 'X'}

const flatVersion uint32 = 1

// FlatIndex is an exact inner-product index that scans every entry.
// Entries with zero norm always rank after every non-zero entry; ties are
// broken by ascending label.
type FlatIndex struct {
	dim  int
	data []float32 // row-major, Count()*dim
	zero []bool
}

var _ Index = (*FlatIndex)(nil)

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

func (f *FlatIndex) Count() int {
	return len(f.zero)
}

func (f *FlatIndex) Dimension() int {
	return f.dim
}

func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d dimension mismatch: expected %d, got %d", i, f.dim, len(v))
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
		f.zero = append(f.zero, isZero(v))
	}
	return nil
}

func (f *FlatIndex) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

func (f *FlatIndex) Search(query []float32, k int) ([]int64, []float64) {
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		label int
		score float64
		zero  bool
	}

	n := f.Count()
	all := make([]scored, n)
	for i := 0; i < n; i++ {
		s := scored{label: i, zero: f.zero[i]}
		if !s.zero {
			s.score = dot(query, f.row(i))
		}
		all[i] = s
	}

	sort.SliceStable(all, func(a, b int) bool {
		if all[a].zero != all[b].zero {
			return !all[a].zero
		}
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].label < all[b].label
	})

	k = min(k, n)
	labels := make([]int64, k)
	scores := make([]float64, k)
	for i := 0; i < k; i++ {
		labels[i] = int64(all[i].label)
		scores[i] = all[i].score
	}
	return labels, scores
}

// MarshalBinary stores: magic "FIDX", version(uint32), dim(uint32),
// n(uint32), then n*dim little-endian float32 values.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 + 4*len(f.data))
	buf.Write(flatMagic[:])
	header := []uint32{flatVersion, uint32(f.dim), uint32(f.Count())}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, f.data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < 16 || !bytes.Equal(data[:4], flatMagic[:]) {
		return errors.New("flat index: invalid header")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != flatVersion {
		return fmt.Errorf("flat index: unsupported version %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))

	body := data[16:]
	if len(body) != 4*dim*n {
		return fmt.Errorf("flat index: expected %d bytes of vectors, got %d", 4*dim*n, len(body))
	}

	values := make([]float32, dim*n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}

	f.dim = dim
	f.data = values
	f.zero = make([]bool, n)
	for i := 0; i < n; i++ {
		f.zero[i] = isZero(f.row(i))
	}
	return nil
}

// decodeIndex picks the index implementation from the artifact header.
func decodeIndex(data []byte) (Index, error) {
	if len(data) >= 4 && bytes.Equal(data[:4], flatMagic[:]) {
		idx := &FlatIndex{}
		if err := idx.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, errors.New("unknown index format")
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
