package rest

import (
	"github.com/tunesync/api/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func handleAvailable(gCtx global.Context) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		token := requestToken(ctx)
		activeOnly := string(ctx.QueryArgs().Peek("active")) == "true"

		users, err := gCtx.Inst().Presences.AvailableUsers(ctx, token, activeOnly)
		if err != nil {
			zap.S().Errorw("rest, available users query failed",
				"error", err,
			)

			writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]interface{}{
				"message": "failed to fetch available users",
			})

			return
		}

		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"onlineUsers": users,
		})
	}
}

func handleRecent(gCtx global.Context) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		token := requestToken(ctx)

		users, err := gCtx.Inst().Presences.RecentUsers(ctx, token)
		if err != nil {
			zap.S().Errorw("rest, recent users query failed",
				"error", err,
			)

			writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]interface{}{
				"message": "failed to fetch recent users",
			})

			return
		}

		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"recentUsers": users,
		})
	}
}
