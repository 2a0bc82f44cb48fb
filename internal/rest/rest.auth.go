package rest

import (
	"net/url"
	"strings"

	"github.com/tunesync/api/internal/global"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const authorizeURL = "https://discord.com/api/oauth2/authorize"

var oauthScopes = []string{"identify", "relationships.read"}

func handleAuthRedirect(gCtx global.Context) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		discord := gCtx.Config().Platforms.Discord

		params := url.Values{}
		params.Set("client_id", discord.ClientID)
		params.Set("redirect_uri", discord.RedirectURI)
		params.Set("response_type", "code")
		params.Set("scope", strings.Join(oauthScopes, " "))

		ctx.Redirect(authorizeURL+"?"+params.Encode(), fasthttp.StatusTemporaryRedirect)
	}
}

func handleAuthCallback(gCtx global.Context) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		code := string(ctx.QueryArgs().Peek("code"))
		if code == "" {
			writeJSON(ctx, fasthttp.StatusBadRequest, map[string]interface{}{
				"message": "missing authorization code",
			})

			return
		}

		user, err := gCtx.Inst().Social.ExchangeCode(ctx, code)
		if err != nil {
			zap.S().Warnw("rest, oauth exchange failed",
				"error", err,
			)

			writeJSON(ctx, fasthttp.StatusBadRequest, map[string]interface{}{
				"message": "invalid authorization code",
			})

			return
		}

		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"token": user.AccessToken,
		})
	}
}
