// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
)

const statusTimeout = 3 * time.Second

// ServiceStatus holds the probe results for a running accountd.
type ServiceStatus struct {
	Addr  string `json:"addr"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	client     *http.Client
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{client: &http.Client{Timeout: statusTimeout}}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running accountd",
		Long: `Query the liveness and readiness probes of a running accountd on its
metrics address (--metrics-addr or metrics.addr).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runStatus(cmd, cfg, loaded.Metrics.Addr)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().String("metrics-addr", config.Default().Metrics.Addr, "metrics/health HTTP address")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig, addr string) error {
	if addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "metrics.addr").Errorf("metrics address is disabled, nothing to query")
	}
	status := queryStatus(cmd.Context(), cfg.client, addr)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
		}
		cmd.Println(string(out))
	} else {
		cmd.Print(formatStatusTable(status))
	}

	if !status.Ready {
		return oops.Code("SERVICE_NOT_READY").With("addr", addr).Errorf("accountd at %s is not ready", addr)
	}
	return nil
}

func queryStatus(ctx context.Context, client *http.Client, addr string) ServiceStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	status := ServiceStatus{Addr: addr}
	var err error
	status.Live, err = probe(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Ready, err = probe(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err //nolint:wrapcheck // reported as text
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err //nolint:wrapcheck // reported as text
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

func formatStatusTable(s ServiceStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tLIVE\tREADY\tERROR")
	errText := s.Error
	if errText == "" {
		errText = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Addr, yesNo(s.Live), yesNo(s.Ready), errText)
	_ = w.Flush()
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
