package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"FindAImage/internal/config"
	"FindAImage/internal/logger"
	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/catalog"
)

// lookup-model печатает заявленные модальности модели из каталога: lookup-model [flags] <model id>
func main() {
	cfg := config.NewConfig()

	sugar, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = sugar.Sync() }()

	id := flag.Arg(0)
	if id == "" {
		fmt.Fprintln(os.Stderr, "usage: lookup-model [flags] <model id>")
		os.Exit(2)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		sugar.Fatalw("Failed to load catalog", "path", cfg.CatalogPath, "error", err)
	}

	tags, ok := cat.Lookup(id)
	if !ok {
		a := capability.Assess(id, nil)
		fmt.Printf("%s: not in catalog (audio guess: %t)\n", id, a.Audio)
		os.Exit(1)
	}
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = "'" + t + "'"
	}
	fmt.Printf("tags: [%s]\n", strings.Join(quoted, ", "))
}
