package metrics

import (
	"context"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var serverLog = logrus.WithField("component", "metrics_server")

// NewHandler 调试/指标路由：
// - expvar:     /debug/vars
// - prometheus: /metrics
// - pprof:      /debug/pprof
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartAsync 非阻塞启动指标服务，ctx 取消时优雅关闭
//
// 监听失败直接返回错误；运行期错误只记录日志。
func StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "监听指标地址 %s 失败", listenAddr)
	}
	s := &http.Server{
		Addr:              listenAddr,
		Handler:           NewHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLog.WithError(err).Error("指标服务异常退出")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			serverLog.WithError(err).Warn("指标服务关闭超时")
		}
	}()

	serverLog.Infof("指标服务已启动: %s", ln.Addr())
	return s, nil
}
