package migration

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidVersionFormat = errors.New("invalid version format")
var ErrInvalidMigrationName = errors.New("invalid migration name")

type (
	VersionFormat string

	Batch uint

	Version struct {
		Format     VersionFormat
		Value      string
		MigratedAt time.Time
	}

	// Migration is a single named unit of change. Migrate scripts are applied
	// in order on the way up and Rollback scripts on the way down.
	Migration struct {
		Key      string
		Name     string
		Version  Version
		Batch    Batch
		Migrate  []string
		Rollback []string
	}

	// Record is what the repository remembers about an applied migration.
	Record struct {
		Key        string
		Batch      Batch
		MigratedAt time.Time
	}

	ClockFunc func() time.Time
	Factory   func() (*Migration, error)
)

const (
	TimestampFormat VersionFormat = "timestamp"
	DatetimeFormat  VersionFormat = "datetime"
	DatedFormat     VersionFormat = "dated"
	AnyFormat       VersionFormat = "any"

	MaxTimestampLength = 11
	MinTimestampLength = 9
	DatetimeLength     = 14

	datetimeLayout = "20060102150405"
	datedLayout    = "2006_01_02_150405"
)

var allowedFormats = []VersionFormat{TimestampFormat, DatetimeFormat, DatedFormat, AnyFormat}

func ParseVersionFormat(s string) (VersionFormat, error) {
	for _, f := range allowedFormats {
		if string(f) == s {
			return f, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidVersionFormat, "%s", s)
}

// New creates an in-memory migration factory, the version format
// is detected from the version value
func New(version, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Wrapf(ErrInvalidMigrationName, "version %s", version)
		}

		format, err := DetectVersionFormat(version)
		if err != nil {
			return nil, err
		}

		return &Migration{
			Key:  CreateKeyFromVersionAndName(version, name),
			Name: name,
			Version: Version{
				Format: format,
				Value:  version,
			},
			Migrate:  migrate,
			Rollback: rollback,
		}, nil
	}
}

func NewFromFile(key, name string, version Version, migrate, rollback string) Factory {
	return func() (*Migration, error) {
		m := &Migration{
			Key:     key,
			Name:    name,
			Version: version,
		}

		if strings.TrimSpace(migrate) != "" {
			m.Migrate = []string{migrate}
		}

		if strings.TrimSpace(rollback) != "" {
			m.Rollback = []string{rollback}
		}

		return m, nil
	}
}

func (m *Migration) MigrateScripts() string {
	return joinScripts(m.Migrate)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.Rollback)
}

func joinScripts(scripts []string) string {
	var ms bytes.Buffer

	for i := range scripts {
		s := strings.TrimSpace(scripts[i])
		ms.WriteString(s)

		if !strings.HasSuffix(s, ";") {
			ms.WriteString(";")
		}

		if i < len(scripts)-1 {
			ms.WriteString("\n")
		}
	}

	return ms.String()
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	sort.Sort(migrations)

	return migrations, nil
}

func (m Migrations) Keys() []string {
	result := make([]string, 0, len(m))
	for i := range m {
		result = append(result, m[i].Key)
	}
	return result
}

func (m Migrations) Find(key string) (*Migration, bool) {
	for i := range m {
		if m[i].Key == key {
			return m[i], true
		}
	}

	return nil, false
}

// Reverse returns a copy sorted in descending key order
func (m Migrations) Reverse() Migrations {
	result := make(Migrations, len(m))
	for i := range m {
		result[len(m)-1-i] = m[i]
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

// Less orders by key. Keys start with a fixed width version so
// lexical order is the order the migrations were created in.
func (m Migrations) Less(i, j int) bool {
	return m[i].Key < m[j].Key
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

type Records []Record

func (r Records) Keys() []string {
	result := make([]string, 0, len(r))
	for i := range r {
		result = append(result, r[i].Key)
	}
	return result
}

func (r Records) Contains(key string) bool {
	for i := range r {
		if r[i].Key == key {
			return true
		}
	}
	return false
}

func CreateKeyFromVersionAndName(version, name string) string {
	var result bytes.Buffer
	result.WriteString(version)
	result.WriteString("_")
	result.WriteString(SnakeCase(name))
	return result.String()
}

// SnakeCase lowercases the name and joins its words with underscores,
// so "CreateUsers table" becomes "create_users_table"
func SnakeCase(name string) string {
	var b strings.Builder
	prevUnderscore := true

	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			if !prevUnderscore && i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
				b.WriteRune('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

func GenerateVersion(cf ClockFunc, vf VersionFormat) Version {
	var v Version

	v.Format = vf
	switch vf {
	case TimestampFormat:
		v.Value = strconv.Itoa(int(cf().Unix()))
	case DatetimeFormat:
		v.Value = cf().Format(datetimeLayout)
	default:
		v.Format = DatedFormat
		v.Value = cf().Format(datedLayout)
	}

	return v
}

func DetectVersionFormat(value string) (VersionFormat, error) {
	if strings.Contains(value, "_") {
		if _, err := time.Parse(datedLayout, value); err == nil {
			return DatedFormat, nil
		}

		if _, err := time.Parse("2006_01_02", value); err == nil {
			return DatedFormat, nil
		}

		return "", errors.Wrapf(ErrInvalidVersionFormat, "%s", value)
	}

	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return "", errors.Wrapf(ErrInvalidVersionFormat, "%s", value)
	}

	switch {
	case len(value) >= MinTimestampLength && len(value) <= MaxTimestampLength:
		return TimestampFormat, nil
	case len(value) == DatetimeLength:
		return DatetimeFormat, nil
	default:
		return "", errors.Wrapf(ErrInvalidVersionFormat, "%s", value)
	}
}
