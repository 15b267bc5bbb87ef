// Package audit dumps the engine's tables to spreadsheet snapshots and
// prunes terminal bookings past the retention window. Snapshots are the
// operator-facing paper trail; the live tables stay lean.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides read access to the tables being dumped.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// DataCleaner removes terminal bookings older than the retention window.
type DataCleaner interface {
	DeleteOldTerminalBookings(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config tunes the export service.
type Config struct {
	Interval      time.Duration
	Dir           string
	RetentionDays int
	ExportOnStart bool
}

// Service runs periodic exports and retention cleanup.
type Service struct {
	config   Config
	exporter TableExporter
	cleaner  DataCleaner
	logger   zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService wires the audit exporter.
func NewService(config Config, exporter TableExporter, cleaner DataCleaner, logger *zerolog.Logger) *Service {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Dir == "" {
		config.Dir = "audit"
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 90
	}
	return &Service{
		config:   config,
		exporter: exporter,
		cleaner:  cleaner,
		logger:   logger.With().Str("component", "audit").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the export scheduler.
func (s *Service) Start() {
	if s.config.ExportOnStart {
		go s.runOnce()
	}
	s.wg.Add(1)
	go s.loop()
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Int("retention_days", s.config.RetentionDays).
		Msg("audit service started")
}

// Stop terminates the scheduler and waits for an in-flight run.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Service) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if path, err := s.Export(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
	} else {
		s.logger.Info().Str("path", path).Msg("audit export written")
	}

	if err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("retention cleanup failed")
	}
}

// Export dumps every table into a timestamped workbook under the
// configured directory and returns its path.
func (s *Service) Export(ctx context.Context) (string, error) {
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables to export")
	}

	wb := newWorkbook()
	defer wb.close()

	for _, table := range tables {
		rows, columns, err := s.exporter.GetTableData(ctx, table)
		if err != nil {
			s.logger.Error().Err(err).Str("table", table).Msg("read table for export")
			continue
		}
		if err := wb.addSheet(table); err != nil {
			s.logger.Error().Err(err).Str("table", table).Msg("add sheet")
			continue
		}
		if err := wb.writeHeader(columns); err != nil {
			s.logger.Error().Err(err).Str("table", table).Msg("write header")
			continue
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := wb.writeRow(values); err != nil {
				s.logger.Error().Err(err).Str("table", table).Msg("write row")
			}
		}
		s.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("table exported")
	}

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.config.Dir, fmt.Sprintf("bookings_%s.xlsx", time.Now().UTC().Format("2006-01-02_150405")))
	if err := wb.saveToFile(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// Cleanup deletes cancelled and completed bookings older than the
// retention window. Active bookings are never touched.
func (s *Service) Cleanup(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}
	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldTerminalBookings(ctx, retention)
	if err != nil {
		return fmt.Errorf("delete old bookings: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("old terminal bookings pruned")
	}
	return nil
}
