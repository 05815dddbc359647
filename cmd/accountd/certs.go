// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/tls"
	"github.com/accountd/accountd/internal/xdg"
)

// certsConfig holds configuration for the certs command.
type certsConfig struct {
	dir      string
	hosts    []string
	validFor time.Duration
}

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	cfg := &certsConfig{}

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate a development CA and HTTPS certificate",
		Long: `Write a server certificate for --tls-cert/--tls-key, signed by a local
development CA. An existing CA in the directory is reused so clients that
already trust it keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCerts(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/accountd/certs)")
	cmd.Flags().StringSliceVar(&cfg.hosts, "host", nil, "DNS name or IP for the certificate (repeatable, default: localhost,127.0.0.1)")
	cmd.Flags().DurationVar(&cfg.validFor, "valid-for", 365*24*time.Hour, "server certificate lifetime")

	return cmd
}

func runCerts(cmd *cobra.Command, cfg *certsConfig) error {
	dir := cfg.dir
	if dir == "" {
		base, err := xdg.ConfigDir()
		if err != nil {
			return oops.Code("CERTS_FAILED").With("operation", "resolve certs dir").Wrap(err)
		}
		dir = filepath.Join(base, "certs")
	}

	ca, err := tls.LoadCA(dir)
	if err != nil {
		ca, err = tls.GenerateCA()
		if err != nil {
			return oops.Code("CERTS_FAILED").With("operation", "generate ca").Wrap(err)
		}
		cmd.Println("Generated new development CA")
	} else {
		cmd.Println("Reusing development CA in " + dir)
	}

	server, err := tls.GenerateServerCert(ca, cfg.hosts, cfg.validFor)
	if err != nil {
		return oops.Code("CERTS_FAILED").With("operation", "generate server certificate").Wrap(err)
	}
	if err := tls.SaveCertificates(dir, ca, server); err != nil {
		return oops.Code("CERTS_FAILED").With("operation", "save certificates").With("dir", dir).Wrap(err)
	}

	cmd.Printf("Wrote %s and %s\n", filepath.Join(dir, tls.ServerCertFile), filepath.Join(dir, tls.ServerKeyFile))
	cmd.Printf("Serve with: accountd serve --tls-cert %s --tls-key %s\n",
		filepath.Join(dir, tls.ServerCertFile), filepath.Join(dir, tls.ServerKeyFile))
	return nil
}
