package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// EnvFilterDir overrides the compiled-in filter library location when set.
const EnvFilterDir = "MRCPP_FILTER_DIR"

// defaultFilterDir is where the install target places the filter files.
const defaultFilterDir = "/usr/local/share/mrcpp/filters"

var ErrFilterRead = errors.New("filter file read failed")

// Library locates the binary filter files on disk. The zero value is not
// useful; build one with NewLibrary.
type Library struct {
	Dir string
}

// DefaultDir resolves the filter library directory, honouring EnvFilterDir.
func DefaultDir() string {
	if d := os.Getenv(EnvFilterDir); d != "" {
		return d
	}
	return defaultFilterDir
}

// NewLibrary returns a library rooted at dir, falling back to DefaultDir
// when dir is empty.
func NewLibrary(dir string) Library {
	if dir == "" {
		dir = DefaultDir()
	}
	return Library{Dir: dir}
}

// FilterPaths returns the H0 and G0 file paths for a family and order. The
// files are named {I|L}_{H0|G0}_{order}.
func (lib Library) FilterPaths(typ Type, order int) (string, string, error) {
	var prefix string
	switch typ {
	case Interpol:
		prefix = "I"
	case Legendre:
		prefix = "L"
	default:
		return "", "", fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	hPath := filepath.Join(lib.Dir, fmt.Sprintf("%s_H0_%d", prefix, order))
	gPath := filepath.Join(lib.Dir, fmt.Sprintf("%s_G0_%d", prefix, order))
	return hPath, gPath, nil
}

// readFilterBin reads the K x K H0 and G0 blocks into the full matrix one
// row at a time and completes G1/H1 by symmetry. The files hold raw
// little-endian float64 rows with no framing.
func readFilterBin(m *Matrix, typ Type, k1 int, hPath, gPath string) error {
	hf, err := os.Open(hPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilterRead, err)
	}
	defer hf.Close()
	gf, err := os.Open(gPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilterRead, err)
	}
	defer gf.Close()

	dH := make([]float64, k1)
	dG := make([]float64, k1)
	for i := 0; i < k1; i++ {
		if err = readRow(hf, dH); err != nil {
			return fmt.Errorf("%w: %s row %d: %v", ErrFilterRead, hPath, i, err)
		}
		if err = readRow(gf, dG); err != nil {
			return fmt.Errorf("%w: %s row %d: %v", ErrFilterRead, gPath, i, err)
		}
		for j := 0; j < k1; j++ {
			m.Set(i, j, dG[j])
			m.Set(k1+i, j, dH[j])
		}
	}
	fillSymmetry(m, typ, k1)
	return nil
}

func readRow(r io.Reader, row []float64) error {
	buf := make([]byte, 8*len(row))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for j := range row {
		row[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8 : j*8+8]))
	}
	return nil
}
