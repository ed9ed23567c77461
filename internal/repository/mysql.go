package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/BenJaminBMorin/hide-n-seek/internal/config"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// MySQLRepository репозиторий для исторических данных: треки устройств
// и журнал событий зон. Схема в scripts/schema.sql.
type MySQLRepository struct {
	db     *sql.DB
	logger *utils.Logger
	config *config.MySQLConfig
}

// NewMySQLRepository создает новый MySQL репозиторий
func NewMySQLRepository(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return &MySQLRepository{
		db:     db,
		logger: logger,
		config: cfg,
	}, nil
}

// Ping проверяет соединение с MySQL
func (r *MySQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		metrics.MySQLConnectionStatus.Set(0)
		return err
	}
	metrics.MySQLConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с MySQL
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

// SavePositionsBatch сохраняет батч опубликованных позиций
func (r *MySQLRepository) SavePositionsBatch(ctx context.Context, updates []*models.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	start := time.Now()

	args := make([]interface{}, 0, len(updates)*7)
	for _, u := range updates {
		args = append(args, u.DeviceID, u.X, u.Y, u.Confidence, u.SensorCount, string(u.Method), u.Timestamp)
	}

	query := `
		INSERT INTO position_history (
			device_id, x, y, confidence, sensor_count, method, recorded_at
		) VALUES ` + generatePlaceholders(len(updates), 7)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		metrics.MySQLWriteErrors.Inc()
		return fmt.Errorf("failed to batch insert positions: %w", err)
	}

	metrics.MySQLBatchSize.Observe(float64(len(updates)))
	metrics.MySQLBatchDuration.Observe(time.Since(start).Seconds())
	return nil
}

// SaveZoneEventsBatch сохраняет батч событий зон
func (r *MySQLRepository) SaveZoneEventsBatch(ctx context.Context, events []models.ZoneEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()

	args := make([]interface{}, 0, len(events)*7)
	for _, e := range events {
		args = append(args, e.DeviceID, e.ZoneID, e.ZoneName, string(e.Transition), e.X, e.Y, e.Timestamp)
	}

	query := `
		INSERT INTO zone_event (
			device_id, zone_id, zone_name, transition, x, y, recorded_at
		) VALUES ` + generatePlaceholders(len(events), 7)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		metrics.MySQLWriteErrors.Inc()
		return fmt.Errorf("failed to batch insert zone events: %w", err)
	}

	metrics.MySQLBatchDuration.Observe(time.Since(start).Seconds())
	return nil
}

// GetDeviceTrack возвращает трек устройства за интервал времени,
// от новых к старым
func (r *MySQLRepository) GetDeviceTrack(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]*models.PositionUpdate, error) {
	query := `
		SELECT device_id, x, y, confidence, sensor_count, method, recorded_at
		FROM position_history
		WHERE device_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query device track: %w", err)
	}
	defer rows.Close()

	var track []*models.PositionUpdate
	for rows.Next() {
		var u models.PositionUpdate
		var method string
		if err := rows.Scan(&u.DeviceID, &u.X, &u.Y, &u.Confidence, &u.SensorCount, &method, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		u.Method = models.PositionMethod(method)
		track = append(track, &u)
	}
	return track, rows.Err()
}

// GetZoneEvents возвращает события зоны за интервал времени,
// от новых к старым
func (r *MySQLRepository) GetZoneEvents(ctx context.Context, zoneID string, from, to time.Time, limit int) ([]models.ZoneEvent, error) {
	query := `
		SELECT device_id, zone_id, zone_name, transition, x, y, recorded_at
		FROM zone_event
		WHERE zone_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone events: %w", err)
	}
	defer rows.Close()

	var events []models.ZoneEvent
	for rows.Next() {
		var e models.ZoneEvent
		var transition string
		if err := rows.Scan(&e.DeviceID, &e.ZoneID, &e.ZoneName, &transition, &e.X, &e.Y, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Transition = models.ZoneTransition(transition)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupOldPositions удаляет историю старше olderThan
func (r *MySQLRepository) CleanupOldPositions(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM position_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup position history: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		r.logger.WithFields(map[string]interface{}{
			"rows":   rows,
			"cutoff": cutoff,
		}).Info("Cleaned up old position history")
	}

	_, err = r.db.ExecContext(ctx,
		"DELETE FROM zone_event WHERE recorded_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup zone events: %w", err)
	}
	return nil
}

// GetStats возвращает статистику исторических таблиц
func (r *MySQLRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var positions, events int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM position_history").Scan(&positions); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM zone_event").Scan(&events); err != nil {
		return nil, err
	}

	stats["position_history"] = positions
	stats["zone_events"] = events
	return stats, nil
}

// generatePlaceholders строит VALUES плейсхолдеры для batch INSERT
func generatePlaceholders(count, fieldsPerRecord int) string {
	if count == 0 {
		return ""
	}

	singleRecord := "(" + strings.Repeat("?,", fieldsPerRecord-1) + "?)"

	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = singleRecord
	}

	return strings.Join(placeholders, ",")
}
