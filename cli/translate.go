package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"excel-translator-web/config"
	"excel-translator-web/models"
	"excel-translator-web/spreadsheet"
	"excel-translator-web/translator"
)

// runTranslate 命令行翻译单个文件，配额中止时仍写出已完成的部分
func runTranslate(cmd *cobra.Command, input, output string, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	if err := spreadsheet.CheckExtension(input); err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	texts, err := spreadsheet.ReadFirstColumn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("文件解析失败: %w", err)
	}

	if output == "" {
		output = filepath.Join(filepath.Dir(input), spreadsheet.ExportFileName(input))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	client := translator.NewTranslatorClient(cfg.Gemini, cfg.Breaker.Timeout)
	logger := translator.NewTaskLogger(stderr, filepath.Base(input))
	logger.SetDebugMode(cfg.Log.Debug)
	processor := translator.NewBatchProcessor(client, cfg.Batch, logger)

	fmt.Fprintf(stderr, "共 %d 条待翻译\n", len(texts))
	result, runErr := processor.Process(ctx, texts, func(p models.ProgressState) {
		fmt.Fprintf(stderr, "进度: %.0f%% (%d/%d)\n", p.Progress, len(p.Pairs), len(texts))
	})

	if err := writeOutput(output, result.Pairs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已写出 %s（%d 条，占位 %d 条）\n", output, len(result.Pairs), result.Failed)

	if runErr != nil {
		fmt.Fprintln(stderr, translator.UserMessage(runErr))
		return fmt.Errorf("翻译中止，已完成 %d/%d 条: %w", len(result.Pairs), len(texts), runErr)
	}
	return nil
}

func writeOutput(path string, pairs []models.TranslatedPair) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	if err := spreadsheet.WritePairs(out, pairs, spreadsheet.DefaultHeaders); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
