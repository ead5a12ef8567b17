package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"
	"github.com/fulldump/goconfig"

	"github.com/joshuapare/heapkit/cmd/heapd/api"
	"github.com/joshuapare/heapkit/cmd/heapd/configuration"
	"github.com/joshuapare/heapkit/cmd/heapd/service"
	"github.com/joshuapare/heapkit/internal/logger"
)

var VERSION = "dev"

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("heapd", VERSION)
		os.Exit(0)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "  ")
		e.Encode(c)
	}

	log := logger.FromEnv()
	access := logger.New(logger.Options{Enabled: true, Output: os.Stdout})

	s, err := service.New(service.Config{
		BlockSize:        c.BlockSize,
		CollectThreshold: c.CollectThreshold,
		Transitive:       c.Transitive,
		MiniMode:         c.MiniMode,
		ScavengeInterval: c.ScavengeInterval,
		Logger:           log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
		os.Exit(-1)
	}

	b := api.Build(s, VERSION)
	b.WithInterceptors(
		api.AccessLog(access),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
	)

	server := &http.Server{
		Addr:              c.HttpAddr,
		Handler:           box.Box2Http(b),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
		os.Exit(-1)
	}
	access.Info("listening", "addr", c.HttpAddr)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		access.Info("signal received", "signal", sig.String())
		server.Shutdown(context.Background())
	}()

	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}()

	wg.Wait()

	if err := s.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
		os.Exit(-1)
	}
}
