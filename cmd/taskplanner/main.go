package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskplanner/internal/api"
	"taskplanner/internal/calendar"
	"taskplanner/internal/config"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)

	loc := cfg.Location()
	tokenSvc := service.NewTokenService(tokenRepo, cfg.Google)
	mapper := calendar.NewMapper(loc)
	remote := calendar.NewClient(tokenSvc)

	syncSvc := service.NewSyncService(taskRepo, remote, mapper, cfg.Sync)
	taskSvc := service.NewTaskService(taskRepo, syncSvc)
	occurrenceSvc := service.NewOccurrenceService(taskRepo, instanceRepo)
	importSvc := service.NewImportService(taskRepo, remote, mapper, cfg.Sync)
	agendaSvc := service.NewAgendaService(occurrenceSvc, taskRepo)

	if cfg.AgendaTime != "" {
		scheduler := service.NewSchedulerService(loc)
		_, err := scheduler.ScheduleDaily(cfg.AgendaTime, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			users, err := userRepo.ListAll(jobCtx)
			if err != nil {
				log.Printf("agenda: list users: %v", err)
				return
			}
			for _, user := range users {
				text, err := agendaSvc.DailyAgenda(jobCtx, user, time.Now().In(loc))
				if err != nil {
					log.Printf("agenda: user %d: %v", user.ID, err)
					continue
				}
				log.Printf("agenda for user %d:\n%s", user.ID, text)
			}
		})
		if err != nil {
			log.Fatalf("schedule agenda: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := api.NewServer(userRepo, tokenSvc, taskSvc, occurrenceSvc, syncSvc, importSvc, agendaSvc, remote, loc)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Task planner listening on %s", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
