// mcpstub runs the sandbox Mapbox MCP server: the same wire protocol as
// the hosted endpoint, answered from canned fixtures. Point the client at
// it with MCP_SERVER_URL=http://localhost:9090 and the same JWT_SECRET.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lionkeng/mapbox-mcp-server/internal/stubserver"
	"github.com/lionkeng/mapbox-mcp-server/pkg/auth"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("mcpstub exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	viper.SetConfigName("mcpstub")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("stub.port", 9090)
	viper.SetDefault("jwt.issuer", auth.DefaultIssuer)
	viper.SetDefault("jwt.audience", auth.DefaultAudience)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	secret := viper.GetString("jwt.secret")
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	issuer, err := auth.NewIssuer(auth.Config{
		Secret:   secret,
		Issuer:   viper.GetString("jwt.issuer"),
		Audience: viper.GetString("jwt.audience"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("stub.port")),
		Handler:           stubserver.New(issuer, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("sandbox MCP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
