package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
)

func runSources(flagSet *flag.FlagSet) {
	flagSet.Parse(os.Args[2:])

	creds := config.Load().Credentials

	fmt.Printf("%-20s %-10s %-12s %-12s %-6s %s\n",
		"ID", "COUNTRY", "KIND", "RESOLUTION", "AUTH", "CREDENTIALS")
	for _, s := range sources.All() {
		country := s.Country
		if country == "" {
			country = "global"
		}
		status := "-"
		if s.Auth != sources.AuthNone {
			if s.HasCredentials(creds) {
				status = "configured"
			} else {
				status = "missing"
			}
		}
		fmt.Printf("%-20s %-10s %-12s %-12s %-6s %s\n",
			s.ID, country, s.Kind, fmt.Sprintf("%gm", s.ResolutionM), s.Auth, status)
	}
}
