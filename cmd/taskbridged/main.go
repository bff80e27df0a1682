package main

import (
	"flag"
	"fmt"
	"os"

	"taskbridge/internal/server"
)

func main() {
	addr := flag.String("addr", os.Getenv("TASKBRIDGED_ADDR"), "Listen address (default 127.0.0.1:7272)")
	unixPath := flag.String("unix", os.Getenv("TASKBRIDGED_UNIX"), "Listen on unix socket path")
	token := flag.String("token", os.Getenv("TASKBRIDGED_TOKEN"), "Shared token for local auth")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	flag.Parse()

	opts := server.Options{
		Addr:   *addr,
		Unix:   *unixPath,
		Token:  *token,
		DBPath: *dbPath,
	}

	if err := server.Serve(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
