package social

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tunesync/api/data/model"
	"go.uber.org/zap"
)

// UpdatePresence posts the user's rich presence to the platform and rotates
// the continuation token: the previous token is always retracted after a new
// presence is posted. A nil presence retracts only.
//
// Failures never propagate to the caller. A rate limited call schedules a
// single deferred retry; a newer update for the same user invalidates any
// pending retry.
func (i *inst) UpdatePresence(ctx context.Context, userID string, presence *model.PresenceModel) {
	gen := i.bumpGeneration(userID)

	i.updatePresence(ctx, userID, presence, gen)
}

func (i *inst) updatePresence(ctx context.Context, userID string, presence *model.PresenceModel, gen uint64) {
	user, err := i.users.Get(ctx, userID)
	if err != nil {
		return
	}

	if user.Discord == "" {
		return
	}

	if user, err = i.renew(ctx, user); err != nil {
		// No usable credentials; drop the update silently.
		zap.S().Debugw("social, presence skipped",
			"user_id", userID,
			"error", err,
		)

		return
	}

	previousToken := user.PresenceToken

	if presence != nil {
		token, retryAfter, err := i.postPresence(ctx, user, presence)

		switch {
		case retryAfter > 0:
			i.scheduleRetry(userID, presence, gen, retryAfter)
			return
		case err != nil:
			i.countPush("error")
			zap.S().Warnw("social, presence update rejected",
				"user_id", userID,
				"error", err,
			)

			return
		}

		i.countPush("ok")

		user.PresenceToken = token
	} else {
		user.PresenceToken = ""
	}

	if err = i.users.Update(ctx, user); err != nil {
		zap.S().Errorw("social, failed to persist presence token",
			"user_id", userID,
			"error", err,
		)
	}

	if previousToken == "" {
		return
	}

	retryAfter, err := i.deletePresence(ctx, user, previousToken)

	switch {
	case retryAfter > 0:
		i.scheduleRetry(userID, presence, gen, retryAfter)
	case err != nil:
		i.countPush("error")
		zap.S().Warnw("social, presence retraction rejected",
			"user_id", userID,
			"error", err,
		)
	}
}

// postPresence issues the create/update call. On a rate limited response the
// advertised retry interval is returned instead of an error.
func (i *inst) postPresence(ctx context.Context, user model.UserModel, presence *model.PresenceModel) (string, time.Duration, error) {
	body, err := json.Marshal(map[string]interface{}{
		"activities": []*model.PresenceModel{presence},
		"token":      user.PresenceToken,
	})
	if err != nil {
		return "", 0, err
	}

	resp, err := i.presenceRequest(ctx, user, "/users/@me/headless-sessions", body)
	if err != nil {
		return "", 0, err
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", retryInterval(resp), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, responseError(resp)
	}

	result := struct {
		Token string `json:"token"`
	}{}

	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	return result.Token, 0, nil
}

// deletePresence retracts a previously posted presence by continuation token.
func (i *inst) deletePresence(ctx context.Context, user model.UserModel, token string) (time.Duration, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return 0, err
	}

	resp, err := i.presenceRequest(ctx, user, "/users/@me/headless-sessions/delete", body)
	if err != nil {
		return 0, err
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return retryInterval(resp), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, responseError(resp)
	}

	return 0, nil
}

func (i *inst) presenceRequest(ctx context.Context, user model.UserModel, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.api+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", authorization(user))
	req.Header.Set("Content-Type", "application/json")

	return i.httpClient.Do(req)
}

// bumpGeneration advances the user's presence generation and cancels any
// pending retry, which now carries stale data.
func (i *inst) bumpGeneration(userID string) uint64 {
	i.retryMu.Lock()
	defer i.retryMu.Unlock()

	i.retryGen[userID]++

	if timer, ok := i.retryTimers[userID]; ok {
		timer.Stop()
		delete(i.retryTimers, userID)
	}

	return i.retryGen[userID]
}

func (i *inst) scheduleRetry(userID string, presence *model.PresenceModel, gen uint64, after time.Duration) {
	i.countPush("rate_limited")
	zap.S().Debugw("social, presence rate limited",
		"user_id", userID,
		"retry_after", after,
	)

	i.retryMu.Lock()
	defer i.retryMu.Unlock()

	if i.retryGen[userID] != gen {
		return
	}

	i.retryTimers[userID] = time.AfterFunc(after, func() {
		i.retryMu.Lock()
		current := i.retryGen[userID] == gen
		delete(i.retryTimers, userID)
		i.retryMu.Unlock()

		if !current {
			return
		}

		i.updatePresence(context.Background(), userID, presence, gen)
	})
}

func (i *inst) countPush(outcome string) {
	if i.prom == nil {
		return
	}

	i.prom.PresencePushes().WithLabelValues(outcome).Inc()
}

func retryInterval(resp *http.Response) time.Duration {
	result := struct {
		RetryAfter float64 `json:"retry_after"`
	}{}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.RetryAfter <= 0 {
		return time.Second
	}

	return time.Duration(result.RetryAfter * float64(time.Second))
}
