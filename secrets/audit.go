package secrets

import (
	"context"

	"go.uber.org/zap"
)

// ZapAuditLogger records secret access attempts through a zap logger. Only
// the reference path, operation, and outcome are logged, never the value.
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates an audit logger backed by the given zap logger.
func NewZapAuditLogger(logger *zap.Logger) *ZapAuditLogger {
	return &ZapAuditLogger{logger: logger}
}

// LogAccess implements the AuditLogger interface.
func (l *ZapAuditLogger) LogAccess(_ context.Context, operation string, ref SecretRef, success bool, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("path", ref.Path),
		zap.Bool("success", success),
	}
	if ref.Version != "" {
		fields = append(fields, zap.String("version", ref.Version))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.logger.Info("secret access", fields...)
}
