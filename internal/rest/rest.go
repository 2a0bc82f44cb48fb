package rest

import (
	"time"

	"github.com/fasthttp/router"
	jsoniter "github.com/json-iterator/go"
	"github.com/tunesync/api/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New starts the HTTP read-model server. It exposes the availability queries
// backed by the gateway's registries plus the OAuth login routes.
func New(gCtx global.Context) error {
	r := router.New()

	r.GET("/v1/social/available", handleAvailable(gCtx))
	r.GET("/v1/social/recent", handleRecent(gCtx))
	r.GET("/v1/auth/discord", handleAuthRedirect(gCtx))
	r.GET("/v1/auth/discord/callback", handleAuthCallback(gCtx))

	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in rest request handler",
						"panic", err,
						"path", string(ctx.Path()),
					)

					ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				} else {
					zap.S().Debugw("rest request",
						"status", ctx.Response.StatusCode(),
						"duration", time.Since(start)/time.Millisecond,
						"method", string(ctx.Method()),
						"path", string(ctx.Path()),
					)
				}
			}()

			ctx.Response.Header.Set("Content-Type", "application/json")

			r.Handler(ctx)
		},
		ReadTimeout:     time.Second * 30,
		IdleTimeout:     time.Second * 10,
		CloseOnShutdown: true,
	}

	go func() {
		<-gCtx.Done()
		_ = srv.Shutdown()
	}()

	zap.S().Infow("rest, listening",
		"bind", gCtx.Config().Http.Bind,
	)

	return srv.ListenAndServe(gCtx.Config().Http.Bind)
}

// requestToken extracts the caller's opaque access token, if any.
func requestToken(ctx *fasthttp.RequestCtx) string {
	if token := string(ctx.Request.Header.Peek("Authorization")); token != "" {
		return token
	}

	return string(ctx.QueryArgs().Peek("token"))
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, data map[string]interface{}) {
	body := map[string]interface{}{
		"timestamp": time.Now().UnixMilli(),
		"code":      status,
	}

	for k, v := range data {
		body[k] = v
	}

	b, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)

		return
	}

	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}
