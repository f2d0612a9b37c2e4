package source

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

// maxCollisionAttempts bounds how far the version is pushed forward
// when the generated key is already taken
const maxCollisionAttempts = 60

var (
	createClassRegexp = regexp.MustCompile(`^create_(\w+?)(?:_(?:table|class|vertex|edge))?$`)
	updateClassRegexp = regexp.MustCompile(`_(?:to|from|in)_(\w+?)(?:_(?:table|class|vertex|edge))?$`)
)

type CreateOptions struct {
	// Class the migration is about, guessed from the name when empty
	Class string

	// Create renders the create class stub instead of the update one
	Create bool

	// Edge makes a created class extend E instead of V
	Edge bool

	WithRollback bool
}

type Created struct {
	Migration *migration.Migration
	Files     []string
}

type Creator struct {
	lg     logger.Logger
	clock  migration.ClockFunc
	format migration.VersionFormat
}

func NewCreator(vf migration.VersionFormat, clock migration.ClockFunc, lg logger.Logger) *Creator {
	if clock == nil {
		clock = time.Now
	}

	if vf == "" || vf == migration.AnyFormat {
		vf = migration.DatedFormat
	}

	return &Creator{lg: lg, clock: clock, format: vf}
}

// Create writes a new migration file pair into folder. The migrate file is
// created exclusively: when the key is already taken the version is moved one
// second forward and tried again.
func (c *Creator) Create(name, folder string, opts CreateOptions) (*Created, error) {
	snakeName := migration.SnakeCase(name)
	if snakeName == "" {
		return nil, errors.Wrapf(migration.ErrInvalidMigrationName, "%q", name)
	}

	if !isDir(folder) {
		return nil, errors.Wrapf(ErrFolderInvalid, "%s", folder)
	}

	stb, data := c.resolveStub(snakeName, opts)

	now := c.clock()
	for attempt := 0; attempt < maxCollisionAttempts; attempt++ {
		at := now.Add(time.Duration(attempt) * time.Second)
		version := migration.GenerateVersion(func() time.Time { return at }, c.format)
		key := migration.CreateKeyFromVersionAndName(version.Value, snakeName)

		migrateFile := filepath.Join(folder, key+MigrateFileExtension)
		rollbackFile := filepath.Join(folder, key+RollbackFileExtension)

		if fileExists(rollbackFile) {
			c.lg.Debugf("key %s is taken, moving version forward", key)
			continue
		}

		created, err := writeExclusive(migrateFile, stb.migrate, data)
		if err != nil {
			return nil, err
		}

		if !created {
			c.lg.Debugf("key %s is taken, moving version forward", key)
			continue
		}

		files := []string{migrateFile}
		if opts.WithRollback {
			created, err := writeExclusive(rollbackFile, stb.rollback, data)
			if err != nil {
				return nil, err
			}

			if !created {
				return nil, errors.Wrapf(ErrMigrationAlreadyExists, "%s", rollbackFile)
			}
			files = append(files, rollbackFile)
		}

		return &Created{
			Migration: &migration.Migration{
				Key:     key,
				Name:    humanize(snakeName),
				Version: version,
			},
			Files: files,
		}, nil
	}

	return nil, errors.Wrapf(ErrMigrationAlreadyExists, "%s in %s", snakeName, folder)
}

func (c *Creator) resolveStub(snakeName string, opts CreateOptions) (stub, stubData) {
	data := stubData{Name: snakeName, Class: opts.Class, SuperClass: "V"}
	if opts.Edge {
		data.SuperClass = "E"
	}

	create := opts.Create
	if data.Class == "" {
		if m := createClassRegexp.FindStringSubmatch(snakeName); m != nil {
			data.Class = className(m[1])
			create = true
		} else if m := updateClassRegexp.FindStringSubmatch(snakeName); m != nil {
			data.Class = className(m[1])
		}
	}

	switch {
	case data.Class == "":
		return blankStub, data
	case create:
		return createStub, data
	default:
		return updateStub, data
	}
}

// className turns a snake cased word into an OrientDB style class name,
// "blog_posts" becomes "BlogPosts"
func className(snake string) string {
	var b strings.Builder
	for _, part := range strings.Split(snake, "_") {
		b.WriteString(ucFirst(part))
	}
	return b.String()
}

func writeExclusive(path string, tpl *template.Template, data stubData) (bool, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return false, errors.Wrapf(err, "could not render stub for %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "could not create file %s", path)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return false, errors.Wrapf(err, "could not write file %s", path)
	}

	if err := f.Close(); err != nil {
		return false, errors.Wrapf(err, "could not close file %s", path)
	}

	return true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
