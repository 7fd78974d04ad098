// Command authz runs the authorization server. It is configured entirely
// through AUTHZ_* environment variables, optionally read from a .env file.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aussiebroadwan/authz/internal/auth/app"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("authz", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print the build version and exit")
	checkConfig := fs.Bool("check-config", false, "validate the AUTHZ_* configuration and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, app.BuildVersion)
		return 0
	}

	cfg := app.LoadConfig()

	if *checkConfig {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "invalid configuration:\n%v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "issuer=%s backend=%s signing=%s port=%d\n",
			cfg.Issuer, cfg.EphemeralBackend, cfg.SigningMode, cfg.Port)
		return 0
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "authz: failed to initialize: %v\n", err)
		return 1
	}
	if err := application.Run(); err != nil {
		fmt.Fprintf(stderr, "authz: %v\n", err)
		return 1
	}
	return 0
}
