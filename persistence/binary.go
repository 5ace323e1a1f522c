package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/x448/float16"
)

// BinaryWriter writes little-endian index data.
type BinaryWriter struct {
	w         io.Writer
	byteOrder binary.ByteOrder
	scratch   []byte
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{
		w:         w,
		byteOrder: binary.LittleEndian,
	}
}

// WriteHeader stamps magic and version and writes the file header.
func (bw *BinaryWriter) WriteHeader(header *FileHeader) error {
	header.Magic = MagicIndex
	header.Version = Version
	return binary.Write(bw.w, bw.byteOrder, header)
}

// WriteUint32 writes a single uint32.
func (bw *BinaryWriter) WriteUint32(v uint32) error {
	buf := bw.buffer(4)
	bw.byteOrder.PutUint32(buf, v)
	_, err := bw.w.Write(buf)
	return err
}

// WriteVector writes vec at the given precision.
func (bw *BinaryWriter) WriteVector(vec []float32, p Precision) error {
	if p == Float16 {
		return bw.WriteFloat16Slice(vec)
	}

	return bw.WriteFloat32Slice(vec)
}

// WriteFloat32Slice writes a float32 slice as raw IEEE-754 bits.
func (bw *BinaryWriter) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}

	buf := bw.buffer(len(vec) * 4)
	for i, v := range vec {
		bw.byteOrder.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	_, err := bw.w.Write(buf)
	return err
}

// WriteFloat16Slice narrows vec to half precision and writes it.
func (bw *BinaryWriter) WriteFloat16Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}

	buf := bw.buffer(len(vec) * 2)
	for i, v := range vec {
		bw.byteOrder.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
	}

	_, err := bw.w.Write(buf)
	return err
}

// WriteUint32Slice writes a uint32 slice.
func (bw *BinaryWriter) WriteUint32Slice(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}

	buf := bw.buffer(len(slice) * 4)
	for i, v := range slice {
		bw.byteOrder.PutUint32(buf[i*4:], v)
	}

	_, err := bw.w.Write(buf)
	return err
}

func (bw *BinaryWriter) buffer(n int) []byte {
	if cap(bw.scratch) < n {
		bw.scratch = make([]byte, n)
	}

	return bw.scratch[:n]
}

// BinaryReader reads little-endian index data.
type BinaryReader struct {
	r         io.Reader
	byteOrder binary.ByteOrder
	scratch   []byte
}

// NewBinaryReader creates a new binary reader.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{
		r:         r,
		byteOrder: binary.LittleEndian,
	}
}

// ReadHeader reads and validates the file header.
func (br *BinaryReader) ReadHeader() (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(br.r, br.byteOrder, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicIndex {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	return &header, nil
}

// ReadUint32 reads a single uint32.
func (br *BinaryReader) ReadUint32() (uint32, error) {
	buf, err := br.read(4)
	if err != nil {
		return 0, err
	}
	return br.byteOrder.Uint32(buf), nil
}

// ReadVector reads count components stored at the given precision.
func (br *BinaryReader) ReadVector(count int, p Precision) ([]float32, error) {
	if p == Float16 {
		return br.ReadFloat16Slice(count)
	}

	return br.ReadFloat32Slice(count)
}

// ReadFloat32Slice reads a float32 slice.
func (br *BinaryReader) ReadFloat32Slice(count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}
	buf, err := br.read(count * 4)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, count)
	for i := range vec {
		vec[i] = math.Float32frombits(br.byteOrder.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// ReadFloat16Slice reads half-precision values and widens them to float32.
func (br *BinaryReader) ReadFloat16Slice(count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}
	buf, err := br.read(count * 2)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, count)
	for i := range vec {
		vec[i] = float16.Frombits(br.byteOrder.Uint16(buf[i*2:])).Float32()
	}
	return vec, nil
}

// ReadUint32Slice reads a uint32 slice.
func (br *BinaryReader) ReadUint32Slice(count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	buf, err := br.read(count * 4)
	if err != nil {
		return nil, err
	}
	slice := make([]uint32, count)
	for i := range slice {
		slice[i] = br.byteOrder.Uint32(buf[i*4:])
	}
	return slice, nil
}

func (br *BinaryReader) read(n int) ([]byte, error) {
	if cap(br.scratch) < n {
		br.scratch = make([]byte, n)
	}
	buf := br.scratch[:n]
	if _, err := io.ReadFull(br.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return nil, err
	}
	return buf, nil
}

// SaveToFile writes a file atomically: the data goes to a temp file in the
// same directory which then replaces filename.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// LoadFromFile is a helper to load data from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}
