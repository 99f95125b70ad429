package spreadsheet

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"excel-translator-web/models"
)

// buildWorkbook 生成测试用工作簿，rows 按行写入第一个工作表
func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("写入测试数据失败: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("生成测试工作簿失败: %v", err)
	}
	return buf
}

// TestReadFirstColumn 测试读取 A 列并跳过空行
func TestReadFirstColumn(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{"你好", "ignored"},
		{"", "only column B"},
		{"  世界  "},
		{nil, nil},
		{"再见"},
	})

	texts, err := ReadFirstColumn(buf)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}

	want := []string{"你好", "世界", "再见"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("读取结果 = %v, 期望 %v", texts, want)
	}
}

// TestReadFirstColumnEmpty 测试 A 列没有内容时返回空结果
func TestReadFirstColumnEmpty(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{nil, "B1"},
		{"", "B2"},
	})

	texts, err := ReadFirstColumn(buf)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("期望空结果，实际 %v", texts)
	}
}

// TestReadFirstColumnInvalid 测试非法文件
func TestReadFirstColumnInvalid(t *testing.T) {
	_, err := ReadFirstColumn(strings.NewReader("this is not a workbook"))
	if err == nil {
		t.Fatal("非法文件应返回错误")
	}
	t.Logf("✓ 非法文件错误: %v", err)
}

// TestCheckExtension 测试扩展名校验
func TestCheckExtension(t *testing.T) {
	for _, name := range []string{"a.xlsx", "B.XLSX", "macro.xlsm"} {
		if err := CheckExtension(name); err != nil {
			t.Errorf("%s 应通过校验: %v", name, err)
		}
	}
	for _, name := range []string{"legacy.xls", "notes.txt", "noext"} {
		if err := CheckExtension(name); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s 应返回 ErrUnsupportedFormat, 实际 %v", name, err)
		}
	}
}

// TestWritePairs 测试导出内容
func TestWritePairs(t *testing.T) {
	pairs := []models.TranslatedPair{
		{Original: "你好", Translated: "Hello"},
		{Original: "=1+1", Translated: "[Translation failed]"},
	}

	var buf bytes.Buffer
	if err := WritePairs(&buf, pairs, DefaultHeaders); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("重新打开导出文件失败: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Errorf("工作表 = %v", sheets)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("读取导出工作表失败: %v", err)
	}

	want := [][]string{
		{"Original Text", "Translation"},
		{"你好", "Hello"},
		{"=1+1", "[Translation failed]"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("导出内容 = %v, 期望 %v", rows, want)
	}
}

// TestWritePairsIdempotent 测试相同输入导出字节一致
func TestWritePairsIdempotent(t *testing.T) {
	pairs := []models.TranslatedPair{
		{Original: "a", Translated: "A"},
		{Original: "b", Translated: "B"},
		{Original: "c", Translated: "C"},
	}

	var first, second bytes.Buffer
	if err := WritePairs(&first, pairs, DefaultHeaders); err != nil {
		t.Fatalf("第一次导出失败: %v", err)
	}
	if err := WritePairs(&second, pairs, DefaultHeaders); err != nil {
		t.Fatalf("第二次导出失败: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("两次导出结果不一致")
	}
}

// TestWritePairsEmpty 测试空结果只有表头
func TestWritePairsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePairs(&buf, nil, DefaultHeaders); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	texts, err := ReadFirstColumn(&buf)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if !reflect.DeepEqual(texts, []string{"Original Text"}) {
		t.Errorf("读取结果 = %v", texts)
	}
}

// TestExportFileName 测试导出文件名
func TestExportFileName(t *testing.T) {
	tests := map[string]string{
		"report.xlsx":  "translated_report.xlsx",
		"报表.xlsm":      "translated_报表.xlsx",
		"dir/menu.xlsx": "translated_menu.xlsx",
		"":             DefaultExportName,
		"  ":           DefaultExportName,
		".xlsx":        DefaultExportName,
	}

	for input, want := range tests {
		if got := ExportFileName(input); got != want {
			t.Errorf("ExportFileName(%q) = %q, 期望 %q", input, got, want)
		}
	}
}
