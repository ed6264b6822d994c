package cmdutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/luikyv/franchise-checkout/internal/api"
	"github.com/luikyv/franchise-checkout/internal/timeutil"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Environment string

const (
	LocalEnvironment Environment = "LOCAL"
	AWSEnvironment   Environment = "AWS"
)

func (e Environment) IsLocal() bool {
	return strings.Contains(string(e), string(LocalEnvironment))
}

func AWSConfig(ctx context.Context, env Environment, endpoint string) (*aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config, %w", err)
	}

	if env.IsLocal() {
		cfg.BaseEndpoint = aws.String(endpoint)
		cfg.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
	}
	return &cfg, nil
}

// DSNFromSecret builds a postgres connection string from a Secrets Manager secret.
func DSNFromSecret(ctx context.Context, sm *secretsmanager.Client, secretName string) (string, error) {
	type dbSecret struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		DBName   string `json:"dbname"`
		SSLMode  string `json:"sslmode"`
	}

	slog.Info("retrieving database credentials from secrets manager")
	resp, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret: %w", err)
	}

	var secret dbSecret
	if err := json.Unmarshal([]byte(aws.ToString(resp.SecretString)), &secret); err != nil {
		return "", fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	if secret.SSLMode == "" {
		secret.SSLMode = "require"
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=5",
		secret.Host, secret.Port, secret.Username, secret.Password, secret.DBName, secret.SSLMode), nil
}

func DB(dsn string) (*gorm.DB, error) {
	slog.Info("connecting to database")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: timeutil.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from gorm DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("successfully connected to database")
	return db, nil
}

// ParameterFromSSM reads a SecureString parameter.
func ParameterFromSSM(ctx context.Context, ssmClient *ssm.Client, name string) (string, error) {
	out, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not fetch parameter from SSM (%s): %w", name, err)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func Logger() *slog.Logger {
	return slog.New(&logCtxHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			// Make sure time is logged in UTC.
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == slog.TimeKey {
					return slog.Attr{Key: slog.TimeKey, Value: slog.TimeValue(timeutil.Now())}
				}
				return attr
			},
		}),
	})
}

type logCtxHandler struct {
	slog.Handler
}

func (h *logCtxHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := ctx.Value(api.CtxKeyRequestID).(string); ok {
		r.AddAttrs(slog.String("request_id", requestID))
	}

	if subscriptionID, ok := ctx.Value(api.CtxKeySubscriptionID).(string); ok {
		r.AddAttrs(slog.String("subscription_id", subscriptionID))
	}

	if billID, ok := ctx.Value(api.CtxKeyBillID).(int64); ok {
		r.AddAttrs(slog.Int64("bill_id", billID))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs and WithGroup keep the context handler in front of the wrapped one.
func (h *logCtxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logCtxHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *logCtxHandler) WithGroup(name string) slog.Handler {
	return &logCtxHandler{Handler: h.Handler.WithGroup(name)}
}

// EnvValue retrieves an environment variable or returns a fallback value if not found.
func EnvValue[T ~string](key, fallback T) T {
	if value, exists := os.LookupEnv(string(key)); exists {
		return T(value)
	}
	return fallback
}

// PointerOf returns a pointer to the given value.
func PointerOf[T any](value T) *T {
	return &value
}
