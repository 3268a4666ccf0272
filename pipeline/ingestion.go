package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"heartrisk/ml"
)

const (
	// LabelColumn 标签列，0 表示无病，1-4 表示不同程度
	LabelColumn = "num"
	// MissingSentinel 原始数据中缺失值的占位符
	MissingSentinel = "?"
)

// Columns 返回数据集的列顺序：13 个特征加标签列
func Columns() []string {
	return append(ml.FeatureNames(), LabelColumn)
}

// RawRow 原始数据行，保留行号用于质量报告
type RawRow struct {
	Line   int
	Values []string
}

// IngestionConfig 数据摄取配置
type IngestionConfig struct {
	// Encoding 源文件字符集：utf-8（默认）、latin1、windows-1252、gbk
	Encoding string `yaml:"encoding"`
}

// LoadDataset 从文件读取无表头 CSV 数据集
func LoadDataset(path string, config IngestionConfig) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := ReadDataset(f, config)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return rows, nil
}

// ReadDataset 读取数据集，每行必须恰好有 14 列
func ReadDataset(r io.Reader, config IngestionConfig) ([]RawRow, error) {
	decoder, err := lookupEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}
	if decoder != nil {
		r = transform.NewReader(r, decoder.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Columns())
	reader.TrimLeadingSpace = true

	var rows []RawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		values := make([]string, len(record))
		for i, v := range record {
			values[i] = strings.TrimSpace(v)
		}
		rows = append(rows, RawRow{Line: line, Values: values})
	}
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return rows, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	default:
		return nil, fmt.Errorf("unsupported dataset encoding %q", name)
	}
}
