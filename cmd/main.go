package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"github.com/tunesync/api/internal/configure"
	"github.com/tunesync/api/internal/gateway"
	"github.com/tunesync/api/internal/global"
	"github.com/tunesync/api/internal/health"
	"github.com/tunesync/api/internal/monitoring"
	"github.com/tunesync/api/internal/rest"
	"github.com/tunesync/api/internal/svc/mongo"
	"github.com/tunesync/api/internal/svc/presences"
	"github.com/tunesync/api/internal/svc/prometheus"
	"github.com/tunesync/api/internal/svc/social"
	"github.com/tunesync/api/internal/svc/users"
	"go.uber.org/zap"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	debug.SetGCPercent(2000)
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Errorw("panic detected",
			"panic", s,
		)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("TuneSync API")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debugf("MaxProcs: %d", runtime.GOMAXPROCS(0))

	if err := config.Validate(); err != nil {
		zap.S().Fatalw("invalid config",
			"error", err,
		)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))

	{
		ctx, cancel := global.WithTimeout(gCtx, time.Second*15)

		gCtx.Inst().Mongo, err = mongo.New(ctx, mongo.Options{
			URI:    config.Mongo.URI,
			DB:     config.Mongo.DB,
			Direct: config.Mongo.Direct,
		})

		cancel()

		if err != nil {
			zap.S().Fatalw("failed to connect to mongo",
				"error", err,
			)
		}
	}

	{
		gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{})
	}

	{
		gCtx.Inst().Users = users.New(users.Options{
			Mongo: gCtx.Inst().Mongo,
		})
	}

	{
		gCtx.Inst().Social = social.New(social.Options{
			Config:     config.Platforms,
			Users:      gCtx.Inst().Users,
			Prometheus: gCtx.Inst().Prometheus,
		})
	}

	{
		gCtx.Inst().Presences = presences.New(presences.Options{
			Users:  gCtx.Inst().Users,
			Social: gCtx.Inst().Social,
		})
	}

	wg := sync.WaitGroup{}

	if gCtx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gCtx)
		}()
	}

	if gCtx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.New(gCtx); err != nil {
			zap.S().Fatalw("gateway failed",
				"error", err,
			)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rest.New(gCtx); err != nil {
			zap.S().Fatalw("rest failed",
				"error", err,
			)
		}
	}()

	zap.S().Info("running")

	<-done

	zap.S().Info("shutdown")
	os.Exit(0)
}
