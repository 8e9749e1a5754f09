package bootstrap

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"

	"github.com/fulldump/ridbagdb/api"
	"github.com/fulldump/ridbagdb/collectionmanager"
	"github.com/fulldump/ridbagdb/configuration"
	"github.com/fulldump/ridbagdb/database"
	"github.com/fulldump/ridbagdb/ridbag"
	"github.com/fulldump/ridbagdb/service"
)

var VERSION = "dev"

// DatabaseConfig takes the storage tunables out of the process configuration.
func DatabaseConfig(c *configuration.Configuration) *database.Config {
	return &database.Config{
		Dir: c.Dir,
		Bags: ridbag.Config{
			EmbeddedToTreeThreshold: c.EmbeddedToTreeThreshold,
			TreeToEmbeddedThreshold: c.TreeToEmbeddedThreshold,
			Prefetch:                c.IteratorPrefetch,
		},
		Cache: collectionmanager.Config{
			MaxSize:           c.CacheMaxSize,
			EvictionThreshold: c.CacheEvictionThreshold,
		},
	}
}

func Bootstrap(c *configuration.Configuration) (start, stop func()) {

	db := database.NewDatabase(DatabaseConfig(c))

	b := api.Build(service.NewService(db), VERSION)
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", log.Lshortfile)),
	)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.PrettyErrorInterceptor,
		api.RecoverFromPanic,
		api.InterceptorUnavailable(db),
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		slog.Error("listen", "addr", c.HttpAddr, "error", err.Error())
		os.Exit(-1)
	}
	slog.Info("listening", "addr", c.HttpAddr)

	once := &sync.Once{}
	stop = func() {
		once.Do(func() {
			err := db.Stop()
			if err != nil {
				slog.Error("stop database", "error", err.Error())
			}
			s.Shutdown(context.Background())
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			sig := <-signalChan
			slog.Info("signal received", "signal", sig.String())
			stop()
		}
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				slog.Error("database", "error", err.Error())
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				slog.Error("serve", "error", err.Error())
			}
		}()

		wg.Wait()
	}

	return
}
