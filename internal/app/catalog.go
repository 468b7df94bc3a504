package app

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shaiso/Courier/internal/task/builtin"
)

// DefaultApp - приложение со встроенными task.
const DefaultApp = "courier"

// ErrUnknownApp - приложения с таким именем нет в каталоге.
var ErrUnknownApp = errors.New("unknown app")

// Factory регистрирует task приложения.
type Factory func(a *App)

// Catalog - приложения по имени.
type Catalog map[string]Factory

// BuiltinCatalog возвращает каталог со встроенным приложением.
func BuiltinCatalog() Catalog {
	return Catalog{
		DefaultApp: func(a *App) {
			builtin.Register(a.Tasks())
		},
	}
}

// Load создаёт приложение по имени.
func (c Catalog) Load(name string, cfg Config, opts ...Option) (*App, error) {
	factory, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownApp, name, c.Names())
	}

	a := New(name, cfg, opts...)
	factory(a)
	return a, nil
}

// Names возвращает отсортированные имена приложений.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
