package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

const DefaultMigrationsFolder = "./migrations"

const (
	sqlExtension       = "sql"
	migrateFileSuffix  = "migrate"
	rollbackFileSuffix = "rollback"

	MigrateFileExtension  = ".migrate.sql"
	RollbackFileExtension = ".rollback.sql"

	maxConcurrentReads = 8

	timestampKeyFormat = `^(?P<version>\d{9,11})_(?P<name>[a-zA-Z]\w*)$`
	datetimeKeyFormat  = `^(?P<version>\d{14})_(?P<name>[a-zA-Z]\w*)$`
	datedKeyFormat     = `^(?P<version>\d{4}_\d{2}_\d{2}(?:_\d{6})?)_(?P<name>[a-zA-Z]\w*)$`
	anyKeyFormat       = `^(?P<version>\d{4}_\d{2}_\d{2}(?:_\d{6})?|\d{14}|\d{9,11})_(?P<name>[a-zA-Z]\w*)$`
)

// LocalFileSource reads migrations from one or more folders. Each migration
// is a <key>.migrate.sql file with an optional <key>.rollback.sql next to it.
type LocalFileSource struct {
	folders       []string
	lg            logger.Logger
	keyRegexp     *regexp.Regexp
	versionFormat migration.VersionFormat
}

var _ Selector = (*LocalFileSource)(nil)

type migrationFiles struct {
	folder  string
	version migration.Version
	name    string

	hasMigrate  bool
	hasRollback bool
}

func NewLocalFSSource(
	folders []string,
	lg logger.Logger,
	vf migration.VersionFormat,
) (*LocalFileSource, error) {
	keyRegexp, err := LocalFSParsingRules(vf)
	if err != nil {
		return nil, err
	}

	if len(folders) == 0 {
		folders = []string{DefaultMigrationsFolder}
	}

	return &LocalFileSource{
		folders:       folders,
		keyRegexp:     keyRegexp,
		versionFormat: vf,
		lg:            lg,
	}, nil
}

func LocalFSParsingRules(vf migration.VersionFormat) (*regexp.Regexp, error) {
	switch vf {
	case migration.TimestampFormat:
		return regexp.Compile(timestampKeyFormat)
	case migration.DatetimeFormat:
		return regexp.Compile(datetimeKeyFormat)
	case migration.DatedFormat:
		return regexp.Compile(datedKeyFormat)
	default:
		return regexp.Compile(anyKeyFormat)
	}
}

func (lfs *LocalFileSource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	files, err := lfs.scan(f)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for key := range files {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make(migration.Migrations, len(keys))
	errs := make([]error, len(keys))
	sem := semaphore.NewWeighted(maxConcurrentReads)
	var wg sync.WaitGroup

	for i := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, errors.Wrap(err, "reading migrations interrupted")
		}

		wg.Add(1)
		go func(i int) {
			defer func() {
				wg.Done()
				sem.Release(1)
			}()

			result[i], errs[i] = lfs.readOne(keys[i], files[keys[i]])
		}(i)
	}

	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		lfs.lg.Error(err)
		return nil, err
	}

	sort.Sort(result)

	return result, nil
}

func (lfs *LocalFileSource) scan(f Filter) (map[string]*migrationFiles, error) {
	files := make(map[string]*migrationFiles)

	for _, folder := range lfs.folders {
		entries, err := os.ReadDir(folder)
		if err != nil {
			return nil, errors.Wrapf(ErrFolderInvalid, "%s: %s", folder, err.Error())
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			key, suffix, err := splitFilename(entry.Name())
			if err != nil {
				lfs.lg.Debugf("skipping %s: %s", filepath.Join(folder, entry.Name()), err.Error())
				continue
			}

			mf, ok := files[key]
			if !ok {
				version, name, err := lfs.parseKey(key)
				if err != nil {
					return nil, errors.Wrapf(err, "file %s", filepath.Join(folder, entry.Name()))
				}

				mf = &migrationFiles{folder: folder, version: version, name: name}
				files[key] = mf
			} else if mf.folder != folder {
				return nil, errors.Wrapf(ErrDuplicateMigration, "%s found in %s and %s", key, mf.folder, folder)
			}

			if suffix == migrateFileSuffix {
				mf.hasMigrate = true
			} else {
				mf.hasRollback = true
			}
		}
	}

	for key, mf := range files {
		if !mf.hasMigrate {
			return nil, errors.Wrapf(ErrMissingMigrateFile, "%s in %s", key, mf.folder)
		}

		if len(f.Keys) > 0 && !f.allows(&migration.Migration{Key: key, Version: mf.version}) {
			delete(files, key)
		}
	}

	return files, nil
}

func (lfs *LocalFileSource) parseKey(key string) (migration.Version, string, error) {
	var version migration.Version

	matches := lfs.keyRegexp.FindStringSubmatch(key)
	if len(matches) < 3 {
		return version, "", errors.Wrapf(ErrInvalidMigrationKey, "%s", key)
	}

	format, err := migration.DetectVersionFormat(matches[1])
	if err != nil {
		return version, "", errors.Wrapf(ErrInvalidMigrationKey, "%s: %s", key, err.Error())
	}

	version.Value = matches[1]
	version.Format = format

	return version, humanize(matches[2]), nil
}

func (lfs *LocalFileSource) readOne(key string, mf *migrationFiles) (*migration.Migration, error) {
	up, err := os.ReadFile(filepath.Join(mf.folder, key+MigrateFileExtension))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrate file for %s", key)
	}

	var down []byte
	if mf.hasRollback {
		down, err = os.ReadFile(filepath.Join(mf.folder, key+RollbackFileExtension))
		if err != nil {
			return nil, errors.Wrapf(err, "could not read rollback file for %s", key)
		}
	}

	factory := migration.NewFromFile(key, mf.name, mf.version, stripComments(string(up)), stripComments(string(down)))

	return factory()
}

func splitFilename(filename string) (key, suffix string, err error) {
	segments := strings.Split(filepath.Base(filename), ".")

	if len(segments) != 3 || segments[2] != sqlExtension {
		return "", "", ErrNotAMigrationFile
	}

	if segments[1] != migrateFileSuffix && segments[1] != rollbackFileSuffix {
		return "", "", ErrNotAMigrationFile
	}

	return segments[0], segments[1], nil
}

// stripComments drops whole line -- comments so a file holding nothing but
// comments is treated as empty
func stripComments(script string) string {
	lines := strings.Split(script, "\n")
	kept := lines[:0]

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isDir(folder string) bool {
	info, err := os.Stat(folder)
	if err != nil {
		return false
	}

	return info.IsDir()
}
