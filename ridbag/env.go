package ridbag

import (
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/sbtree"
)

const (
	// Disabled as a threshold turns that conversion direction off.
	Disabled = -1

	DefaultEmbeddedToTreeThreshold = 40
	DefaultTreeToEmbeddedThreshold = Disabled
	DefaultPrefetch                = 1000
)

// TreeManager is the shared cache of tree handles.
type TreeManager interface {
	CreateAndLoadTree(cluster int32) (*sbtree.Tree, error)
	LoadTree(pointer sbtree.CollectionPointer) (*sbtree.Tree, error)
	ReleaseTree(pointer sbtree.CollectionPointer) error
	DeleteTree(pointer sbtree.CollectionPointer) error
}

type Config struct {
	EmbeddedToTreeThreshold int
	TreeToEmbeddedThreshold int
	Prefetch                int
}

func DefaultConfig() Config {
	return Config{
		EmbeddedToTreeThreshold: DefaultEmbeddedToTreeThreshold,
		TreeToEmbeddedThreshold: DefaultTreeToEmbeddedThreshold,
		Prefetch:                DefaultPrefetch,
	}
}

// Env is what every bag of one database shares: the tree cache, the record
// loader and the conversion thresholds.
type Env struct {
	manager TreeManager
	loader  rid.Loader
	config  Config
}

func NewEnv(manager TreeManager, loader rid.Loader, config Config) *Env {
	if config.Prefetch <= 0 {
		config.Prefetch = DefaultPrefetch
	}
	if config.EmbeddedToTreeThreshold >= 0 && config.TreeToEmbeddedThreshold > config.EmbeddedToTreeThreshold {
		config.TreeToEmbeddedThreshold = config.EmbeddedToTreeThreshold
	}
	return &Env{
		manager: manager,
		loader:  loader,
		config:  config,
	}
}

func (e *Env) Config() Config {
	return e.config
}

func (e *Env) withTree(pointer sbtree.CollectionPointer, f func(tree *sbtree.Tree) error) error {
	tree, err := e.manager.LoadTree(pointer)
	if err != nil {
		return err
	}
	defer e.manager.ReleaseTree(pointer)

	return f(tree)
}

func (e *Env) resolve(value rid.Identifiable) (rid.Identifiable, error) {
	if e.loader == nil {
		return value, nil
	}
	id, unresolved := value.(rid.RID)
	if !unresolved || !id.IsPersistent() {
		return value, nil
	}
	return e.loader.Load(id)
}
