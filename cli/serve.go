package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"excel-translator-web/config"
	"excel-translator-web/handlers"
	"excel-translator-web/middleware"
	"excel-translator-web/translator"
	"excel-translator-web/web"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = time.Hour
)

// Server 组装好的 Web 服务
type Server struct {
	Router   *gin.Engine
	Handler  *handlers.Handler
	Sessions *middleware.SessionManager
}

// NewServer 创建路由：会话中间件、/api 接口和前端页面
func NewServer(ctx context.Context, cfg config.Config, client translator.Translator) (*Server, error) {
	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MultipartMemoryMB << 20

	tasks := handlers.NewTaskManager()
	sessions := middleware.NewSessionManager(cfg.Session.Timeout)
	sessions.OnExpire = func(sessionID string) {
		if n := tasks.RemoveSession(sessionID); n > 0 {
			log.Printf("[会话 %.8s] 会话过期，释放 %d 个任务", sessionID, n)
		}
	}
	r.Use(sessions.Middleware())

	h := handlers.NewHandler(ctx, tasks, client, cfg.Batch)
	h.Debug = cfg.Log.Debug
	h.Register(r)

	if cfg.Server.DevProxy != "" {
		target, err := url.Parse(cfg.Server.DevProxy)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("server.dev_proxy 地址无效: %q", cfg.Server.DevProxy)
		}
		log.Printf("🔧 开发模式：代理前端请求到 %s", target)
		proxy := httputil.NewSingleHostReverseProxy(target)
		r.NoRoute(func(c *gin.Context) {
			proxy.ServeHTTP(c.Writer, c.Request)
		})
	} else {
		r.NoRoute(gin.WrapH(http.FileServer(http.FS(web.FS()))))
	}

	return &Server{Router: r, Handler: h, Sessions: sessions}, nil
}

// Run 监听并服务，ctx 结束后优雅关闭并等待后台任务退出
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	go s.Sessions.Run(ctx, sessionCleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Excel 翻译服务启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动服务失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭服务出错: %v", err)
	}
	s.Handler.Wait()
	return nil
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := translator.NewTranslatorClient(cfg.Gemini, cfg.Breaker.Timeout)
	server, err := NewServer(ctx, cfg, client)
	if err != nil {
		return err
	}
	return server.Run(ctx, cfg.Server.Addr)
}
