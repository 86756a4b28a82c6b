package logger

import (
	"go.uber.org/zap"
)

// New builds the service logger. Development mode gets the console encoder,
// everything else gets JSON output at info level.
func New(env, service string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		log = zap.NewNop()
	}
	return log.With(zap.String("service", service))
}
