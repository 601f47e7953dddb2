package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

const serviceName = "SwapCoordinator"

// logService wraps Service with logging of every call
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the coordinator Service.
// It logs method entry/exit, duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// NewSwap wraps the service method with logging
func (ls *logService) NewSwap(ctx context.Context, req NewSwapRequest) (rec *swap.Record, err error) {
	start := time.Now()

	fields := []zap.Field{
		zap.String("service", serviceName),
		zap.String("method", "NewSwap"),
		zap.String("wallet_id", req.WalletID),
	}
	if req.Quote != nil {
		fields = append(fields,
			zap.String("from", req.Quote.From),
			zap.String("to", req.Quote.To),
			zap.String("network", req.Quote.Network))
	}
	ls.logger.Info("NewSwap started", fields...)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("NewSwap failed",
				append(fields, zap.Duration("duration", duration), zap.Error(err))...)
			return
		}
		ls.logger.Info("NewSwap completed",
			zap.String("service", serviceName),
			zap.String("method", "NewSwap"),
			zap.String("swap_id", rec.ID),
			zap.String("status", rec.Status.String()),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.NewSwap(ctx, req)
}

// Advance wraps the service method with logging
func (ls *logService) Advance(ctx context.Context, in *swap.Record) (out *swap.Record, err error) {
	start := time.Now()

	ls.logger.Debug("Advance started",
		zap.String("service", serviceName),
		zap.String("method", "Advance"),
		zap.String("swap_id", in.ID),
		zap.String("status", in.Status.String()),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Advance failed",
				zap.String("service", serviceName),
				zap.String("method", "Advance"),
				zap.String("swap_id", in.ID),
				zap.String("status", in.Status.String()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Debug("Advance completed",
			zap.String("service", serviceName),
			zap.String("method", "Advance"),
			zap.String("swap_id", in.ID),
			zap.String("from_status", in.Status.String()),
			zap.String("to_status", out.Status.String()),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.Advance(ctx, in)
}
