// Package spreadsheet reads source texts from uploaded workbooks and writes
// original/translation pairs back to xlsx.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("不支持的文件格式")
	ErrNoSheet           = errors.New("工作簿中没有工作表")
)

// CheckExtension 验证上传文件扩展名
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return nil
	case ".xls":
		return fmt.Errorf("%w: 旧版 .xls 文件，请另存为 .xlsx 后重新上传", ErrUnsupportedFormat)
	default:
		return fmt.Errorf("%w: %q，仅支持 .xlsx 文件", ErrUnsupportedFormat, ext)
	}
}

// ReadFirstColumn 读取第一个工作表 A 列的文本，跳过 A 列为空的行
func ReadFirstColumn(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		if errors.Is(err, excelize.ErrWorkbookFileFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("打开工作簿失败: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %s 失败: %w", sheets[0], err)
	}

	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if value == "" {
			continue
		}
		texts = append(texts, value)
	}

	return texts, nil
}
