package sqlrepo

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type schema interface {
	initQuery() string
	dropQuery() string
	existsQuery() string
	insertQuery() string
	removeQuery() string
	readAllQuery() string
	readBatchQuery() string
	readLastQuery() string
	lastBatchQuery() string
	isMissingTable(err error) bool
}

type sqliteSchema struct {
	table string
}

var _ schema = (*sqliteSchema)(nil)

func (s sqliteSchema) initQuery() string {
	const createSQL = `
		CREATE TABLE %s (
			migration VARCHAR(255) PRIMARY KEY,
			batch INTEGER NOT NULL,
			migrated_at TIMESTAMP NOT NULL
		);
	`
	return fmt.Sprintf(createSQL, s.table)
}

func (s sqliteSchema) dropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", s.table)
}

func (s sqliteSchema) existsQuery() string {
	return "SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?;"
}

func (s sqliteSchema) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (migration, batch, migrated_at) VALUES (?, ?, ?);", s.table)
}

func (s sqliteSchema) removeQuery() string {
	return fmt.Sprintf("DELETE FROM %s WHERE migration = ?;", s.table)
}

func (s sqliteSchema) readAllQuery() string {
	return fmt.Sprintf("SELECT migration, batch, migrated_at FROM %s ORDER BY batch ASC, migration ASC;", s.table)
}

func (s sqliteSchema) readBatchQuery() string {
	return fmt.Sprintf("SELECT migration, batch, migrated_at FROM %s WHERE batch = ? ORDER BY migration DESC;", s.table)
}

func (s sqliteSchema) readLastQuery() string {
	return fmt.Sprintf("SELECT migration, batch, migrated_at FROM %s ORDER BY batch DESC, migration DESC LIMIT ?;", s.table)
}

func (s sqliteSchema) lastBatchQuery() string {
	return fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s;", s.table)
}

func (s sqliteSchema) isMissingTable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrError && strings.Contains(sqliteErr.Error(), "no such table")
}

type mysqlSchema struct {
	table, charset string
}

var _ schema = (*mysqlSchema)(nil)

// ER_NO_SUCH_TABLE
const mysqlNoSuchTable = 1146

func (s mysqlSchema) initQuery() string {
	const createSQL = "CREATE TABLE %s (" +
		"`migration` VARCHAR(255) NOT NULL PRIMARY KEY, " +
		"`batch` INT UNSIGNED NOT NULL, " +
		"`migrated_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP" +
		") ENGINE=InnoDB CHARACTER SET=%s"

	return fmt.Sprintf(createSQL, s.table, s.charset)
}

func (s mysqlSchema) dropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)
}

func (s mysqlSchema) existsQuery() string {
	return "SELECT count(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (s mysqlSchema) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (`migration`, `batch`, `migrated_at`) VALUES (?, ?, ?)", s.table)
}

func (s mysqlSchema) removeQuery() string {
	return fmt.Sprintf("DELETE FROM %s WHERE `migration` = ?", s.table)
}

func (s mysqlSchema) readAllQuery() string {
	return fmt.Sprintf("SELECT `migration`, `batch`, `migrated_at` FROM %s ORDER BY `batch` ASC, `migration` ASC", s.table)
}

func (s mysqlSchema) readBatchQuery() string {
	return fmt.Sprintf("SELECT `migration`, `batch`, `migrated_at` FROM %s WHERE `batch` = ? ORDER BY `migration` DESC", s.table)
}

func (s mysqlSchema) readLastQuery() string {
	return fmt.Sprintf("SELECT `migration`, `batch`, `migrated_at` FROM %s ORDER BY `batch` DESC, `migration` DESC LIMIT ?", s.table)
}

func (s mysqlSchema) lastBatchQuery() string {
	return fmt.Sprintf("SELECT COALESCE(MAX(`batch`), 0) FROM %s", s.table)
}

func (s mysqlSchema) isMissingTable(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlNoSuchTable
}
