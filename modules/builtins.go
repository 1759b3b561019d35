// Package modules holds the compile-time table of feature modules the host
// can load.
package modules

import (
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/modules/contentgeneration"
	"github.com/skekre98/contentagent/modules/keywordresearch"
	"github.com/skekre98/contentagent/modules/scheduling"
	"github.com/skekre98/contentagent/modules/webscraping"
	"github.com/skekre98/contentagent/modules/wordpress"
)

// Builtins maps each module directory name to its factory. Discovery only
// loads modules that also ship a manifest under the modules root.
func Builtins() map[string]core.Factory {
	return map[string]core.Factory{
		contentgeneration.Name: contentgeneration.New,
		keywordresearch.Name:   keywordresearch.New,
		scheduling.Name:        scheduling.New,
		webscraping.Name:       webscraping.New,
		wordpress.Name:         wordpress.New,
	}
}
