package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/questline/fedi/activitypub"
	"github.com/questline/fedi/inbox"
	"github.com/questline/fedi/internal/group"
	"github.com/questline/fedi/outbox"
	"github.com/questline/fedi/wellknown"
)

type ServeCmd struct {
	Addr       string `help:"Address to listen on." default:":9999" env:"FEDI_ADDR"`
	QueueFlags `embed:""`
}

func (s *ServeCmd) Run(ctx *Context) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	svc := s.services(ctx, db, domain)

	env := &activitypub.Env{
		Store:  svc.store,
		Domain: domain,
		Inbox: inbox.New(inbox.Config{
			Domain:    domain,
			Store:     svc.store,
			Directory: svc.directory,
			Deliverer: svc.delivery,
			Logger:    ctx.Logger.With("component", "inbox"),
		}),
		Builder: outbox.New(domain),
		Queue:   svc.queue,
		Logger:  ctx.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	activitypub.Mount(r, env)
	wellknown.Mount(r, env)
	r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "User-agent: *\nDisallow: /")
	})

	if ctx.Debug {
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			route = strings.Replace(route, "/*/", "/", -1)
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(r, walkFunc); err != nil {
			return err
		}
	}

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g := group.New(sigctx)
	g.Add(func(quit <-chan struct{}) error {
		go func() {
			<-quit
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(shutdown)
		}()
		ctx.Logger.Info("listening", "addr", s.Addr, "domain", domain)
		if err := svr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.AddContext(svc.worker)
	return g.Wait()
}
