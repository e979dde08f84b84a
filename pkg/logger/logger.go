package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
	initOnce    sync.Once
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init builds the process loggers. Call once from main before any component
// starts logging; callers that log earlier get a production default.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	InfoLogger = l
	FatalLogger = l
	return nil
}

func ensure() *zap.Logger {
	initOnce.Do(func() {
		if InfoLogger == nil {
			l, _ := zap.NewProduction()
			InfoLogger = l
			FatalLogger = l
		}
	})
	return InfoLogger
}

func Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ensure().With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ensure().With(
		zap.String("service", serviceName),
	).Warn(msg)
}

func Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ensure().With(
		zap.String("service", serviceName),
	).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if FatalLogger == nil {
		ensure()
	}
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
