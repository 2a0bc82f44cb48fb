package health

import (
	"context"
	"time"

	"github.com/tunesync/api/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func New(gCtx global.Context) <-chan struct{} {
	done := make(chan struct{})

	srv := fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in health",
						"panic", err,
					)
				}
			}()

			var mongoDown bool

			if gCtx.Inst().Mongo != nil {
				lCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
				if err := gCtx.Inst().Mongo.Ping(lCtx); err != nil {
					zap.S().Warnw("mongo is not responding",
						"error", err,
					)

					mongoDown = true
				}
				cancel()
			}

			if mongoDown {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("mongo down")

				return
			}

			ctx.SetStatusCode(fasthttp.StatusOK)
			ctx.SetBodyString("OK")
		},
	}

	go func() {
		defer close(done)

		zap.S().Infow("health, listening",
			"bind", gCtx.Config().Health.Bind,
		)

		if err := srv.ListenAndServe(gCtx.Config().Health.Bind); err != nil {
			zap.S().Fatalw("failed to start health bind",
				"error", err,
			)
		}
	}()

	go func() {
		<-gCtx.Done()

		_ = srv.Shutdown()
	}()

	return done
}
