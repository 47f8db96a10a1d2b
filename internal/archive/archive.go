// Package archive packs and unpacks the named byte blobs that make up a
// snapshot archive: a tar stream wrapped in a zstd compressor.
// Pack and Unpack work on whole in-memory byte slices; neither direction
// streams, so the whole archive and its entries are held in memory at once.
package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one named blob inside an archive.
type Entry struct {
	Name  string
	Bytes []byte
}

// EntryInfo is the metadata List returns for one archive entry, without
// reading its bytes.
type EntryInfo struct {
	Name  string
	Size  int64
	Mtime time.Time
}

// Stats summarizes an archive's compression.
type Stats struct {
	CompressedBytes   int64
	UncompressedBytes int64
	Ratio             float64
	FileCount         int
}

// zstdLevel is the reference compression level for the archive codec.
const zstdLevel = zstd.SpeedDefault // corresponds to zstd level 3

// Pack writes entries as a tar stream compressed with zstd. Entry names
// must be unique within entries; Pack returns an error otherwise. Mode,
// owner and mtime are fixed so the wire bytes are deterministic across
// identical input.
func Pack(entries []Entry) ([]byte, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			return nil, fmt.Errorf("archive: duplicate entry name %q", e.Name)
		}
		seen[e.Name] = true
	}

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("archive: open zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Size:     int64(len(e.Bytes)),
			Mode:     0o644,
			Uid:      0,
			Gid:      0,
			ModTime:  time.Unix(0, 0).UTC(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("archive: write header for %q: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Bytes); err != nil {
			return nil, fmt.Errorf("archive: write body for %q: %w", e.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads every entry out of a packed stream.
func Unpack(stream []byte) ([]Entry, error) {
	zr, err := zstd.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("archive: open zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var out []Entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: malformed header: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("archive: read body for %q: %w", hdr.Name, err)
		}
		out = append(out, Entry{Name: hdr.Name, Bytes: data})
	}
	return out, nil
}

// List reads entry headers only, without materializing bodies.
func List(stream []byte) ([]EntryInfo, error) {
	zr, err := zstd.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("archive: open zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var out []EntryInfo
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: malformed header: %w", err)
		}
		out = append(out, EntryInfo{Name: hdr.Name, Size: hdr.Size, Mtime: hdr.ModTime})
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return nil, fmt.Errorf("archive: skip body for %q: %w", hdr.Name, err)
		}
	}
	return out, nil
}

// ExtractOne returns the bytes of a single named entry, or nil if absent.
func ExtractOne(stream []byte, name string) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("archive: open zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("archive: malformed header: %w", err)
		}
		if hdr.Name != name {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return nil, fmt.Errorf("archive: skip body for %q: %w", hdr.Name, err)
			}
			continue
		}
		return io.ReadAll(tr)
	}
}

// Validate reads every entry header and reports whether the stream is
// well-formed. It does not validate entry bodies beyond what List reads.
func Validate(stream []byte) bool {
	_, err := List(stream)
	return err == nil
}

// Statistics returns compression stats for a packed stream.
func Statistics(stream []byte) (Stats, error) {
	entries, err := Unpack(stream)
	if err != nil {
		return Stats{}, err
	}
	var uncompressed int64
	for _, e := range entries {
		uncompressed += int64(len(e.Bytes))
	}
	compressed := int64(len(stream))
	var ratio float64
	if uncompressed > 0 {
		ratio = float64(compressed) / float64(uncompressed)
	}
	return Stats{
		CompressedBytes:   compressed,
		UncompressedBytes: uncompressed,
		Ratio:             ratio,
		FileCount:         len(entries),
	}, nil
}
