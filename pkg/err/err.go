package errprocess

import (
	"fmt"

	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Set log and wrap err kind with detail, errors.Is(err, kind) 仍然成立
func Set(kind error, detail string, fields ...zap.Field) error {
	err := fmt.Errorf("%w: %s", kind, detail)
	logger.Log.Error(err.Error(), fields...)
	return err
}

// Wrap keep the cause chain, kind 與 cause 都可以 errors.Is
func Wrap(kind error, cause error, fields ...zap.Field) error {
	err := fmt.Errorf("%w: %w", kind, cause)
	logger.Log.Error(err.Error(), fields...)
	return err
}
