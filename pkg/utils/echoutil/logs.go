package echoutil

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

// LogHandlerFunc logs requests and responses at info level.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Infof("< request %s %s", meth, path)

		err := next(c)

		c.Logger().Infof(
			"> response status = %d (for %s %s) in %v / error = %v",
			c.Response().Status, meth, path, time.Since(BEGIN), err,
		)
		return err
	}
}

// SetLevel sets log level of echo by name: debug, info, warn, error or off.
//
// Unknown names fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	l, ok := e.Logger.(*log.Logger)
	if !ok {
		e.Logger.SetLevel(log.WARN)
		return
	}
	if err := logger.SetLevel(l, loglevel); err != nil {
		l.Warn(fmt.Sprintf("%s. fall-backed to warn", err))
	}
}
