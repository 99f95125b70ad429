package spreadsheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"excel-translator-web/models"
)

const (
	SheetName         = "Translations"
	DefaultExportName = "translated_output.xlsx"
	ContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	columnWidth = 60
)

// DefaultHeaders 导出文件的表头
var DefaultHeaders = [2]string{"Original Text", "Translation"}

// WritePairs 写出两列工作表：第一行为表头，之后每行一个原文/译文对
//
// 相同输入总是生成相同的字节。
func WritePairs(w io.Writer, pairs []models.TranslatedPair, headers [2]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("设置工作表名称失败: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &[]interface{}{headers[0], headers[1]}); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("创建表头样式失败: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "B1", bold); err != nil {
		return fmt.Errorf("设置表头样式失败: %w", err)
	}

	for i, pair := range pairs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]interface{}{pair.Original, pair.Translated}); err != nil {
			return fmt.Errorf("写入第 %d 行失败: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "B", columnWidth); err != nil {
		return fmt.Errorf("设置列宽失败: %w", err)
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("冻结表头失败: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("生成 xlsx 失败: %w", err)
	}
	return nil
}

// ExportFileName 导出文件名：translated_<原文件名>，扩展名统一为 .xlsx
func ExportFileName(sourceFile string) string {
	base := filepath.Base(strings.TrimSpace(sourceFile))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return DefaultExportName
	}

	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return DefaultExportName
	}
	return "translated_" + name + ".xlsx"
}
