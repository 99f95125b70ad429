package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xuri/excelize/v2"

	"excel-translator-web/config"
	"excel-translator-web/spreadsheet"
	"excel-translator-web/translator"
)

func TestCreateRootCommand(t *testing.T) {
	cmd := CreateRootCommand(NewFlags(), viper.New())

	if cmd.Use != "excel-translator" {
		t.Errorf("Use = %q", cmd.Use)
	}

	defaults := map[string]string{
		"config":      "",
		"addr":        ":8080",
		"dev-proxy":   "",
		"batch-size":  "10",
		"batch-delay": translator.DefaultDelay.String(),
		"debug":       "false",
	}
	for name, want := range defaults {
		flag := persistentFlag(t, cmd, name)
		if flag.DefValue != want {
			t.Errorf("--%s 默认值 = %q, 期望 %q", name, flag.DefValue, want)
		}
	}

	for _, name := range []string{"serve", "translate"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("缺少子命令 %s: %v", name, err)
		}
	}

	translate, _, _ := cmd.Find([]string{"translate"})
	if translate.Flags().Lookup("output") == nil {
		t.Error("translate 缺少 --output 参数")
	}
}

func persistentFlag(t *testing.T, cmd *cobra.Command, name string) *pflag.Flag {
	t.Helper()
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		t.Fatalf("缺少参数 --%s", name)
	}
	return flag
}

func TestFlagsBindToViper(t *testing.T) {
	chdir(t, t.TempDir())
	v := viper.New()
	cmd := CreateRootCommand(NewFlags(), v)

	if err := cmd.ParseFlags([]string{"--addr", ":9999", "--batch-size", "3", "--batch-delay", "5ms"}); err != nil {
		t.Fatalf("解析参数失败: %v", err)
	}
	if err := config.Init(v, ""); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	if got := v.GetString("server.addr"); got != ":9999" {
		t.Errorf("server.addr = %q", got)
	}
	if got := v.GetInt("batch.size"); got != 3 {
		t.Errorf("batch.size = %d", got)
	}
	if got := v.GetDuration("batch.delay"); got != 5*time.Millisecond {
		t.Errorf("batch.delay = %v", got)
	}
}

// newGeminiServer 模拟 Gemini 接口：返回 "EN:" + 原文，failAt 指定的调用返回 429
func newGeminiServer(t *testing.T, failAt int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == failAt {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota)."}}`)
			return
		}

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		text := req.Contents[0].Parts[0].Text
		source := text[strings.LastIndex(text, "\n")+1:]

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, "EN:"+source)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeInput(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		f.SetCellValue("Sheet1", cell, row)
	}
	path := filepath.Join(dir, "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("保存输入文件失败: %v", err)
	}
	return path
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("打开输出文件失败: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(spreadsheet.SheetName)
	if err != nil {
		t.Fatalf("读取输出文件失败: %v", err)
	}
	return rows
}

func executeTranslate(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.GeminiKeyEnv, "test-key")
	t.Setenv("EXCEL_TRANSLATOR_GEMINI_API_URL", apiURL)

	cmd := CreateRootCommand(NewFlags(), viper.New())
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"translate", "--batch-delay", "0s"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestTranslateCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	srv, calls := newGeminiServer(t, 0)
	input := writeInput(t, dir, "你好", "世界", "再见")

	out, err := executeTranslate(t, srv.URL, input)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	output := filepath.Join(dir, "translated_book.xlsx")
	if !strings.Contains(out, output) {
		t.Errorf("输出信息 = %q", out)
	}

	rows := readOutput(t, output)
	want := [][]string{
		{"Original Text", "Translation"},
		{"你好", "EN:你好"},
		{"世界", "EN:世界"},
		{"再见", "EN:再见"},
	}
	if fmt.Sprint(rows) != fmt.Sprint(want) {
		t.Errorf("rows = %v, 期望 %v", rows, want)
	}
	if *calls != 3 {
		t.Errorf("请求次数 = %d", *calls)
	}
}

func TestTranslateCommandQuota(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	srv, calls := newGeminiServer(t, 2)
	input := writeInput(t, dir, "a", "b", "c")
	output := filepath.Join(dir, "partial.xlsx")

	_, err := executeTranslate(t, srv.URL, input, "-o", output)
	if !errors.Is(err, translator.ErrQuotaExceeded) {
		t.Fatalf("错误 = %v, 期望 ErrQuotaExceeded", err)
	}

	rows := readOutput(t, output)
	if len(rows) != 2 || rows[1][1] != "EN:a" {
		t.Errorf("应只保留配额错误之前的结果: %v", rows)
	}
	if *calls != 2 {
		t.Errorf("配额错误后不应继续请求, 次数 = %d", *calls)
	}
}

func TestTranslateCommandMissingKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(config.GeminiKeyEnv, "")

	cmd := CreateRootCommand(NewFlags(), viper.New())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"translate", "book.xlsx"})
	if err := cmd.Execute(); !errors.Is(err, config.ErrMissingAPIKey) {
		t.Errorf("错误 = %v, 期望 ErrMissingAPIKey", err)
	}
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{MultipartMemoryMB: 8},
		Batch:  translator.BatchConfig{BatchSize: 10},
	}
}

func TestNewServerServesPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server, err := NewServer(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/translate") {
		t.Errorf("首页状态码 = %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/api/tasks 状态码 = %d", w.Code)
	}
}

func TestNewServerDevProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "dev:%s", r.URL.Path)
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.Server.DevProxy = upstream.URL
	server, err := NewServer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if w.Body.String() != "dev:/static/app.js" {
		t.Errorf("代理响应 = %q", w.Body.String())
	}

	cfg.Server.DevProxy = "::bad"
	if _, err := NewServer(context.Background(), cfg, nil); err == nil {
		t.Error("无效的代理地址应返回错误")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
