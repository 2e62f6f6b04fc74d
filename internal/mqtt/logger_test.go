package mqtt

import "github.com/sweeney/beegreen/internal/logger"

func nopLogger() *logger.Logger { return logger.NewNop() }
