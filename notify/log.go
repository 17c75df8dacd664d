package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessionauth"
)

// Log writes notifications to a logger instead of delivering them.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a notifier logging at info level.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) Send(ctx context.Context, msg sessionauth.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
	}
	for k, v := range msg.Data {
		fields = append(fields, zap.String("data."+k, v))
	}
	l.logger.Info("notification", fields...)
	return nil
}
