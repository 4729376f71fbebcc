package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	npyFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// writeNPY writes a rows×dim little-endian float32 matrix in NumPy .npy v1.0 format.
func writeNPY(w io.Writer, data []float32, rows, dim int) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, dim)
	// magic(6) + version(2) + header length(2) + header + '\n' is padded to a multiple of 64.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy header too long")
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(npyMagic); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	if _, err := bw.Write(float32SliceToBytes(data)); err != nil {
		return err
	}
	return bw.Flush()
}

// readNPY reads a 2-D little-endian float32 C-order matrix. Any deviation is ErrCorruptIndex.
func readNPY(r io.Reader) (data []float32, rows, dim int, err error) {
	br := bufio.NewReader(r)
	prefix := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: read npy magic: %v", ErrCorruptIndex, err)
	}
	if string(prefix[:len(npyMagic)]) != string(npyMagic) {
		return nil, 0, 0, fmt.Errorf("%w: not an npy file", ErrCorruptIndex)
	}
	var headerLen int
	switch major := prefix[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: read npy header length: %v", ErrCorruptIndex, err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: read npy header length: %v", ErrCorruptIndex, err)
		}
		headerLen = int(n)
	default:
		return nil, 0, 0, fmt.Errorf("%w: unsupported npy version %d", ErrCorruptIndex, major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: read npy header: %v", ErrCorruptIndex, err)
	}

	rows, dim, err = parseNPYHeader(string(header))
	if err != nil {
		return nil, 0, 0, err
	}

	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read npy data: %w", err)
	}
	if want := rows * dim * 4; len(payload) != want {
		return nil, 0, 0, fmt.Errorf("%w: npy data is %d bytes, header implies %d", ErrCorruptIndex, len(payload), want)
	}
	return bytesToFloat32Slice(payload), rows, dim, nil
}

func parseNPYHeader(header string) (rows, dim int, err error) {
	m := npyDescr.FindStringSubmatch(header)
	if m == nil || m[1] != "<f4" {
		return 0, 0, fmt.Errorf("%w: npy dtype must be <f4", ErrCorruptIndex)
	}
	m = npyFortran.FindStringSubmatch(header)
	if m == nil || m[1] != "False" {
		return 0, 0, fmt.Errorf("%w: npy data must be C order", ErrCorruptIndex)
	}
	m = npyShape.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: npy header has no shape", ErrCorruptIndex)
	}
	var dims []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return 0, 0, fmt.Errorf("%w: bad npy shape %q", ErrCorruptIndex, m[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("%w: npy matrix must be 2-D, got shape (%s)", ErrCorruptIndex, m[1])
	}
	return dims[0], dims[1], nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
