package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	intconfig "matsched/internal/config"
	intdb "matsched/internal/db"
	router "matsched/internal/http"
	"matsched/internal/http/handlers"
	"matsched/internal/jobs"
	"matsched/internal/payments"
	"matsched/internal/queue"
	"matsched/internal/realtime"
	"matsched/internal/repositories"
	"matsched/internal/repositories/memstore"
	"matsched/internal/services"
	"matsched/internal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}
	loc := utils.LoadLocation(env.Timezone)

	store, closeStore := openStore(env)
	defer closeStore()

	queues, closeQueue := openQueue(env)
	defer closeQueue()

	ctx, stopHub := context.WithCancel(context.Background())
	hub := realtime.NewHub()
	go hub.Run(ctx)

	var initiator services.PaymentInitiator = payments.Loopback{}
	if env.Mpesa.Enabled() {
		initiator = &payments.MpesaClient{
			BaseURL:        env.Mpesa.BaseURL,
			ConsumerKey:    env.Mpesa.ConsumerKey,
			ConsumerSecret: env.Mpesa.ConsumerSecret,
			ShortCode:      env.Mpesa.ShortCode,
			Passkey:        env.Mpesa.Passkey,
			CallbackURL:    env.Mpesa.CallbackURL,
			Location:       loc,
			HTTP:           &http.Client{Timeout: 30 * time.Second},
		}
		log.Println("payments: M-Pesa STK push enabled")
		if env.Mpesa.CallbackToken == "" {
			log.Println("warning: MPESA_CALLBACK_URL carries no token, payment callbacks will be refused")
		}
	} else {
		log.Println("payments: M-Pesa credentials missing, using loopback initiator")
	}

	planner := services.ReturnPlanner{Location: loc}
	dispatch := services.DispatchService{
		Store:          store,
		Queue:          queues,
		Notifier:       hub,
		Planner:        planner,
		DepartureDelay: env.DepartureDelay,
	}
	expiry := services.ExpiryService{Store: store, HoldTimeout: env.HoldTimeout, PendingTimeout: env.PendingPaymentTimeout}
	returns := services.ReturnService{Store: store, Notifier: hub, Recycler: dispatch}

	sched := jobs.New()
	mustAdd(sched, jobs.Job{Name: "expiry-sweep", Spec: env.ExpirySweepSpec, Run: expiry.Sweep})
	mustAdd(sched, jobs.Job{Name: "return-sweep", Spec: env.ReturnSweepSpec, Run: returns.SweepOverdue})
	sched.Start()

	hs := &handlers.Handlers{
		Store:     store,
		Auth:      services.AuthService{Store: store, Secret: []byte(env.JWTSecret)},
		Routes:    services.RouteService{Store: store},
		Vehicles:  services.VehicleService{Store: store},
		Schedules: services.ScheduleService{Store: store, Planner: planner, Recycler: dispatch},
		Bookings:  services.BookingService{Store: store, Payments: initiator},
		Payments:  services.PaymentService{Store: store, Notifier: hub, Recycler: dispatch},
		Dispatch:  dispatch,
		Docs:      services.DocsService{Store: store, Location: loc},
		Jobs:      sched,
		Hub:       hub,
		Upgrader:  realtime.Upgrader(env.CORSOrigins),

		CallbackToken: env.Mpesa.CallbackToken,
	}
	r := router.NewRouter(env, hs)

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      40 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Printf("jobs shutdown: %v", err)
	}
	stopHub()

	log.Println("server stopped")
}

func openStore(env intconfig.Env) (repositories.Store, func()) {
	if env.StoreDriver == "memory" {
		log.Println("store: in-memory (single instance, data is lost on restart)")
		return memstore.New(), func() {}
	}

	db, err := intconfig.ConnectDB(env)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if env.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := intdb.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			log.Fatalf("schema bootstrap: %v", err)
		}
	}
	return repositories.NewMySQLStore(db), func() { closeDB(db) }
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("close db: %v", err)
	}
}

func openQueue(env intconfig.Env) (queue.Store, func()) {
	if env.QueueDriver != "redis" {
		return queue.NewMemoryStore(), func() {}
	}
	rs, err := queue.NewRedisStore(env.RedisAddr, env.RedisPassword, env.RedisDB)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	log.Printf("queue: redis at %s", env.RedisAddr)
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
}

func mustAdd(s *jobs.Scheduler, j jobs.Job) {
	if err := s.Add(j); err != nil {
		log.Fatalf("jobs: %v", err)
	}
}
