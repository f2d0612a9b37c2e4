package tern

import (
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/internal/source"
	"github.com/denismitr/tern-orientdb/migration"
)

type (
	folderSourceConfig struct {
		folders       []string
		versionFormat migration.VersionFormat
	}

	// SourceConfigurator tunes how migration files are discovered
	SourceConfigurator func(fc *folderSourceConfig)
)

// WithVersionFormat restricts file keys to one version layout, AnyFormat accepts all of them
func WithVersionFormat(vf migration.VersionFormat) SourceConfigurator {
	return func(fc *folderSourceConfig) {
		fc.versionFormat = vf
	}
}

func UseLocalFolderSource(folder string, configurators ...SourceConfigurator) OptionFunc {
	return UseLocalFolders([]string{folder}, configurators...)
}

// UseLocalFolders reads migrations from all the folders, a key may appear in one folder only.
// The folders are scanned when the migrator is built so that warnings reach its logger.
func UseLocalFolders(folders []string, configurators ...SourceConfigurator) OptionFunc {
	fc := folderSourceConfig{folders: folders, versionFormat: migration.AnyFormat}
	for _, c := range configurators {
		c(&fc)
	}

	return func(m *Migrator) error {
		m.selector = nil
		m.sourceFactory = fc.selector
		return nil
	}
}

// UseInMemorySource serves migrations compiled into the program
func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		s, err := source.NewInMemorySource(factories...)
		if err != nil {
			return err
		}

		m.sourceFactory = nil
		m.selector = s
		return nil
	}
}

func (fc folderSourceConfig) selector(lg logger.Logger) (source.Selector, error) {
	return source.NewLocalFSSource(fc.folders, lg, fc.versionFormat)
}
