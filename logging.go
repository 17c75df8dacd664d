package sessionauth

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

func (e *Engine) log(ctx context.Context) *zap.Logger {
	l := e.logger
	if id := requestIDFromContext(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		l = l.With(zap.String("client_ip", ip))
	}
	return l
}

// maskEmail keeps the first two characters of the local part: jo***@x.com.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		if len(email) <= 2 {
			return "***"
		}
		return email[:2] + "***"
	}
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + domain
}
