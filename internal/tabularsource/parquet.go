package tabularsource

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// ParquetReader adapts an on-disk Parquet file to Reader using parquet-go's
// low-level Row API, since a workspace source's column set is only known
// at runtime — there's no compile-time Go struct to bind a generic reader
// to.
type ParquetReader struct {
	Path string
}

func NewParquetReader(path string) *ParquetReader {
	return &ParquetReader{Path: path}
}

func (r *ParquetReader) openFile() (*os.File, *parquet.File, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("parquet: open %s: %w", r.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("parquet: stat %s: %w", r.Path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("parquet: open file footer: %w", err)
	}
	return f, pf, nil
}

func (r *ParquetReader) Schema(ctx context.Context) (tabular.Schema, error) {
	f, pf, err := r.openFile()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	leaves := pf.Schema().Columns()
	schema := make(tabular.Schema, len(leaves))
	for i, path := range leaves {
		name := path[len(path)-1]
		schema[i] = tabular.Column{Name: name, DataType: "parquet", Nullable: true}
	}
	return schema, nil
}

func (r *ParquetReader) Rows(ctx context.Context, emit func(tabular.Row) error) error {
	f, pf, err := r.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	leaves := pf.Schema().Columns()
	width := len(leaves)

	reader := parquet.NewReader(pf)
	defer reader.Close()

	buf := make([]parquet.Row, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := reader.ReadRows(buf)
		for i := 0; i < n; i++ {
			row := make(tabular.Row, width)
			for _, v := range buf[i] {
				col := v.Column()
				if col >= 0 && col < width {
					row[col] = tabular.Canon(parquetScalar(v))
				}
			}
			if emitErr := emit(row); emitErr != nil {
				return emitErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parquet: read rows: %w", err)
		}
	}
}

// parquetScalar extracts a Go value from a parquet.Value suitable for
// tabular.Canon, treating a null leaf as nil.
func parquetScalar(v parquet.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	default:
		return v.String()
	}
}
