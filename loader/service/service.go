package service

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arx/loader/internal"
	"arx/loader/types"
)

type Service struct {
	cfg      types.Config
	logger   *slog.Logger
	watcher  *internal.Watcher
	uploader *internal.Uploader
}

func New(cfg types.Config) *Service {
	return &Service{
		cfg:      cfg,
		logger:   slog.Default(),
		watcher:  internal.NewWatcher(cfg.SourceDir, cfg.SettleTime),
		uploader: internal.NewUploader(cfg),
	}
}

// Run watches the drop directory and uploads settled files until a
// shutdown signal arrives. Successfully submitted files move to the
// archive directory, rejected ones to the bad directory so they do not
// get retried forever.
func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		if err := s.watcher.Watch(ctx, fileChan); err != nil {
			s.logger.Error("watcher failed", "error", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processFiles(ctx, fileChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("loader service stopped")
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for workers, forcing shutdown")
	}
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}

			s.logger.Info("uploading file", "file", path)
			if err := s.uploader.Upload(ctx, path); err != nil {
				s.logger.Error("upload failed", "file", path, "error", err)
				if err := internal.MoveToArchive(path, s.cfg.BadDir); err != nil {
					s.logger.Error("failed to quarantine file", "file", path, "error", err)
				}
				continue
			}

			if err := internal.MoveToArchive(path, s.cfg.ArchiveDir); err != nil {
				s.logger.Error("failed to archive file", "file", path, "error", err)
				continue
			}
			s.logger.Info("file processed", "file", path)
		}
	}
}
