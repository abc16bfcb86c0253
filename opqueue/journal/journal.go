/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package journal persists terminal job outcomes to a local sqlite database
// so operators can inspect what the queue did after the fact, in particular
// which backups failed permanently. The journal is advisory: the queue keeps
// running when it is absent or writes fail.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chainguard.dev/reposync/opqueue"
	"github.com/chainguard-dev/clog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Entry is one finished job. FinishedAt orders the operator views.
type Entry struct {
	JobID         string `gorm:"primaryKey"`
	ParticipantID string `gorm:"not null;index:idx_participant"`
	Kind          string `gorm:"not null"`
	Stage         int
	Status        string `gorm:"not null;index:idx_status"`
	Attempts      int    `gorm:"not null"`
	Error         string
	SubmittedAt   time.Time `gorm:"not null"`
	FinishedAt    time.Time `gorm:"not null;index:idx_finished"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store is a sqlite-backed journal.
type Store struct {
	db *gorm.DB
}

var _ opqueue.Journal = (*Store)(nil)

// Open opens (creating if needed) the journal database at path and migrates
// its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: &journalLogger{level: gormlogger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating journal schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record upserts the terminal state of a job.
func (s *Store) Record(ctx context.Context, job opqueue.Job) error {
	entry := Entry{
		JobID:         job.ID,
		ParticipantID: job.Op.ParticipantID,
		Kind:          string(job.Op.Kind),
		Stage:         job.Op.Stage,
		Status:        string(job.Status),
		Attempts:      job.Attempts,
		Error:         job.Error,
		SubmittedAt:   job.SubmittedAt,
		FinishedAt:    time.Now(),
	}

	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("saving journal entry for job %s: %w", job.ID, err)
	}
	return nil
}

// RecentPermanentFailures returns up to limit jobs that ended in
// failed_permanent, newest first.
func (s *Store) RecentPermanentFailures(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("status = ?", string(opqueue.StatusFailedPermanent)).
		Order("finished_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("querying permanent failures: %w", err)
	}
	return entries, nil
}

// ForParticipant returns all journal entries for one participant, newest
// first.
func (s *Store) ForParticipant(ctx context.Context, participantID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("finished_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("querying entries for %s: %w", participantID, err)
	}
	return entries, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// journalLogger adapts clog to the gorm logger interface.
type journalLogger struct {
	level gormlogger.LogLevel
}

func (l *journalLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &journalLogger{level: level}
}

func (l *journalLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		clog.FromContext(ctx).Infof(msg, data...)
	}
}

func (l *journalLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		clog.FromContext(ctx).Warnf(msg, data...)
	}
}

func (l *journalLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		clog.FromContext(ctx).Errorf(msg, data...)
	}
}

func (l *journalLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	sql, rows := fc()
	clog.FromContext(ctx).Errorf("journal query failed after %v (rows=%d): %v: %s", time.Since(begin), rows, err, sql)
}
