// Package persistence provides ModelPersister implementations: a SQL store
// for SQLite and PostgreSQL, a YAML or JSON model file and an in-memory
// store. Implementations are created by type name through a registry.
package persistence

import (
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/factory"
	"github.com/kilianp07/agvkernel/core/strategy"
)

var registry = factory.NewRegistry[strategy.ModelPersister]("model persister")

// Register adds a persister factory identified by name.
func Register(name string, f factory.Factory[strategy.ModelPersister]) error {
	return registry.Register(name, f)
}

// Types lists the registered persister types.
func Types() []string { return registry.Types() }

// New creates the persister described by cfg. An empty type disables
// persistence and returns nil.
func New(cfg factory.ModuleConfig) (strategy.ModelPersister, error) {
	if cfg.Type == "" || cfg.Type == "none" {
		return nil, nil
	}
	return registry.Create(cfg)
}

func errNoModel() error { return errs.NewObjectUnknownError("plant model", "persisted") }

type sqliteConf struct {
	Path string `json:"path"`
	Keep int    `json:"keep"`
}

type postgresConf struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`
	Keep     int    `json:"keep"`
}

type fileConf struct {
	Path string `json:"path"`
}

func init() {
	_ = Register("sqlite", func(conf map[string]any) (strategy.ModelPersister, error) {
		var c sqliteConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return OpenSQLite(c.Path, c.Keep)
	})
	_ = Register("postgres", func(conf map[string]any) (strategy.ModelPersister, error) {
		c := postgresConf{Port: 5432, SSLMode: "disable"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return OpenPostgres(c.dsn(), c.Keep)
	})
	_ = Register("file", func(conf map[string]any) (strategy.ModelPersister, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewFilePersister(c.Path)
	})
	_ = Register("memory", func(map[string]any) (strategy.ModelPersister, error) {
		return NewMemoryPersister(), nil
	})
}
