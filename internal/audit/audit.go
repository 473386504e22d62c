// Package audit emite eventos de auditoría del ciclo de vida de
// credenciales (alta, refresh, desvinculación). Viaja por el logger del
// proceso bajo el canal "audit", separable del log de debug en el sink.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

// Log escribe un evento de auditoría con campos estructurados.
func Log(ctx context.Context, event string, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, logger.Any(k, v))
	}
	logger.From(ctx).Named("audit").Info(event, zf...)
}
