package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the process logger: JSON at info level, or a console writer
// at debug level in dev mode.
func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Track attaches a command-scoped logger to ctx and returns a function that
// logs the command's outcome and duration.
func Track(ctx context.Context, logger zerolog.Logger, command string) (context.Context, func(err error)) {
	started := time.Now()
	ctx = logger.With().Str("command", command).Logger().WithContext(ctx)

	return ctx, func(err error) {
		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Dur("duration", time.Since(started)).
				Msg("command failed")
			return
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("command finished")
	}
}
