// Package dbtest opens throwaway sqlite databases carrying the production schema
// shape, for repository and end-to-end tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  clerk_user_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  username TEXT,
  github_installation_id INTEGER UNIQUE,
  github_login TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS repositories (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  github_repo_id INTEGER NOT NULL,
  installation_id INTEGER NOT NULL,
  owner TEXT NOT NULL,
  name TEXT NOT NULL,
  full_name TEXT NOT NULL,
  private INTEGER NOT NULL DEFAULT 0,
  default_branch TEXT NOT NULL DEFAULT 'main',
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (installation_id, github_repo_id)
);`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  platform TEXT NOT NULL,
  event_type TEXT NOT NULL,
  delivery_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'success', 'failed')),
  raw_payload BLOB NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS commits (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  repository_id TEXT NOT NULL,
  webhook_event_id TEXT,
  sha TEXT NOT NULL,
  message TEXT NOT NULL,
  author_name TEXT NOT NULL DEFAULT '',
  author_email TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  committed_at DATETIME NOT NULL,
  additions INTEGER NOT NULL DEFAULT 0,
  deletions INTEGER NOT NULL DEFAULT 0,
  summary TEXT,
  previous_summary TEXT,
  summary_generated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (repository_id, sha)
);`,
	`CREATE TABLE IF NOT EXISTS pull_requests (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  repository_id TEXT NOT NULL,
  webhook_event_id TEXT,
  number INTEGER NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL,
  head_sha TEXT NOT NULL DEFAULT '',
  additions INTEGER NOT NULL DEFAULT 0,
  deletions INTEGER NOT NULL DEFAULT 0,
  summary TEXT,
  previous_summary TEXT,
  summary_generated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (repository_id, number)
);`,
	`CREATE TABLE IF NOT EXISTS blogs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  content TEXT NOT NULL,
  commit_ids TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS aggregate_entries (
  id TEXT PRIMARY KEY,
  aggregate TEXT NOT NULL,
  namespace TEXT NOT NULL,
  record_id TEXT NOT NULL,
  order_key DATETIME NOT NULL,
  sum_value INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  UNIQUE (aggregate, record_id)
);`,
	`CREATE TABLE IF NOT EXISTS aggregate_totals (
  aggregate TEXT NOT NULL,
  namespace TEXT NOT NULL,
  entry_count INTEGER NOT NULL DEFAULT 0 CHECK (entry_count >= 0),
  sum_total INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  PRIMARY KEY (aggregate, namespace)
);`,
	`CREATE TABLE IF NOT EXISTS scheduled_jobs (
  id TEXT PRIMARY KEY,
  job_name TEXT NOT NULL,
  reference TEXT NOT NULL DEFAULT '',
  payload BLOB NOT NULL,
  run_at DATETIME NOT NULL,
  cron_expression TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  lease_owner TEXT,
  lease_expires_at DATETIME,
  last_error TEXT,
  last_run_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS crons (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  schedule TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('enabled', 'disabled')),
  repository_ids TEXT NOT NULL DEFAULT '{}',
  job_id TEXT,
  last_run_at DATETIME,
  synced_until DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK ((status = 'enabled') = (job_id IS NOT NULL))
);`,
	`CREATE TABLE IF NOT EXISTS cron_history (
  id TEXT PRIMARY KEY,
  cron_id TEXT NOT NULL,
  run_at DATETIME NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('success', 'failure')),
  message TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  commits_processed INTEGER NOT NULL DEFAULT 0
);`,
}

// Open returns a private in-memory database with every table created.
// The pool is pinned to a single connection so sqlite never reports a locked table;
// code under test must therefore never query outside an open transaction it holds.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
