// Package echo is the smallest useful handler set: it logs whatever the
// scheduler delivers. Handy for verifying an installation end to end.
package echo

import (
	"context"
	"strings"

	logx "clocktick/pkg/logx"
	"clocktick/pkg/route"
)

// Routes returns the echo handler namespace:
//
//	echo.say(message)
//	echo.shout(message, times)
func Routes(log logx.Logger) route.Group {
	log = log.With(logx.String("comp", "echo"))
	return route.Group{
		"echo": route.Group{
			"say": route.Handler(func(ctx context.Context, message string) {
				log.Info("echo", logx.String("message", message))
			}),
			"shout": route.Handler(func(ctx context.Context, message string, times int) error {
				if times < 1 {
					times = 1
				}
				up := strings.ToUpper(message)
				for i := 0; i < times; i++ {
					log.Info("echo", logx.String("message", up), logx.Int("n", i+1))
				}
				return nil
			}),
		},
	}
}
