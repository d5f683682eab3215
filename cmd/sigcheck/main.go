// Command sigcheck checks a signature manifest against module binaries on
// disk, before they are ever loaded.
//
//	sigcheck -manifest signatures.yaml -dir ./bin -os windows
//
// It exits with status 1 when a signature is missing or malformed, or when
// a module that interfaces are resolved from has no factory export.
package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/k2io/livepatch"
)

func main() {
	path := flag.String("manifest", "signatures.yaml", "signature manifest")
	dir := flag.String("dir", ".", "directory holding the module binaries")
	goos := flag.String("os", runtime.GOOS, "platform the binaries are built for")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetHandler(cli.New(os.Stderr))
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	m, err := livepatch.LoadManifest(*path)
	if err != nil {
		log.WithError(err).Fatal("failed to load manifest")
	}
	r, err := check(m, *dir, *goos)
	if err != nil {
		log.WithError(err).Fatal("failed to open modules")
	}
	r.print(os.Stdout)
	if r.Failed() {
		os.Exit(1)
	}
}
