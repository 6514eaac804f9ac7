package vectorstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// On-disk layout (little endian):
//
//	magic    [4]byte "CIVX"
//	version  uint32
//	metric   uint32 (0 = euclidean, 1 = inner product)
//	dim      uint32
//	count    uint32
//	ids      count * uint64
//	vectors  count * dim * float32
const (
	formatMagic   = "CIVX"
	formatVersion = 1
)

func metricCode(m Metric) (uint32, error) {
	switch m {
	case MetricEuclidean:
		return 0, nil
	case MetricInnerProduct:
		return 1, nil
	default:
		return 0, fmt.Errorf("vectorstore: unknown distance metric %q", m)
	}
}

func metricFromCode(code uint32) (Metric, error) {
	switch code {
	case 0:
		return MetricEuclidean, nil
	case 1:
		return MetricInnerProduct, nil
	default:
		return "", fmt.Errorf("vectorstore: unknown metric code %d", code)
	}
}

// writeIndexFile serializes the index to path and flushes it to stable
// storage.
func writeIndexFile(path string, metric Metric, dim int, ids []uint64, vectors [][]float32) error {
	code, err := metricCode(metric)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vectorstore: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(formatMagic); err != nil {
		return err
	}
	for _, v := range []uint32{formatVersion, code, uint32(dim), uint32(len(ids))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
	}
	buf := make([]byte, 4)
	for _, vec := range vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("vectorstore: flushing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("vectorstore: syncing %s: %w", path, err)
	}
	return nil
}

// readIndexFile deserializes an index file written by writeIndexFile.
func readIndexFile(path string, maxElements int) (Metric, int, []uint64, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, nil, nil, fmt.Errorf("vectorstore: opening %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return "", 0, nil, nil, fmt.Errorf("vectorstore: reading header of %s: %w", path, err)
	}
	if string(magic) != formatMagic {
		return "", 0, nil, nil, fmt.Errorf("vectorstore: %s is not a vector index (bad magic)", path)
	}

	var version, code, dim32, count32 uint32
	for _, dst := range []*uint32{&version, &code, &dim32, &count32} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return "", 0, nil, nil, fmt.Errorf("vectorstore: reading header of %s: %w", path, err)
		}
	}
	if version != formatVersion {
		return "", 0, nil, nil, fmt.Errorf("vectorstore: unsupported index version %d in %s", version, path)
	}
	metric, err := metricFromCode(code)
	if err != nil {
		return "", 0, nil, nil, err
	}

	dim, count := int(dim32), int(count32)
	if maxElements > 0 && count > maxElements {
		return "", 0, nil, nil, fmt.Errorf("vectorstore: index holds %d vectors, caller allows at most %d", count, maxElements)
	}

	ids := make([]uint64, count)
	for i := range ids {
		if err := binary.Read(r, binary.LittleEndian, &ids[i]); err != nil {
			return "", 0, nil, nil, fmt.Errorf("vectorstore: reading ids of %s: %w", path, err)
		}
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", 0, nil, nil, fmt.Errorf("vectorstore: reading vectors of %s: %w", path, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		vectors[i] = vec
	}

	return metric, dim, ids, vectors, nil
}
