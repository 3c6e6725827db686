// Command rsectl runs relevance segment extraction on batch files and issues service tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/auth"
	"github.com/knoguchi/rse/internal/config"
	"github.com/knoguchi/rse/internal/rse"
)

const usage = `usage:
  rsectl filter -input batch.(json|yaml) [-profile rse.yaml] [-addr host:port] [-api-key KEY]
  rsectl token -secret SECRET -subject NAME [-expiry 24h]
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rsectl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "filter":
		return runFilter(args[1:], out)
	case "token":
		return runToken(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runFilter(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	input := fs.String("input", "", "batch file (JSON or YAML)")
	profile := fs.String("profile", "", "YAML filter profile applied before request options")
	addr := fs.String("addr", "", "passage service gRPC address; filters locally when empty")
	apiKey := fs.String("api-key", "", "API key sent to the passage service")
	timeout := fs.Duration("timeout", time.Minute, "remote call timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("filter: -input is required")
	}

	var req api.FilterRequest
	if err := api.ReadFile(*input, &req); err != nil {
		return err
	}

	if *addr != "" {
		var opts []api.ClientOption
		if *apiKey != "" {
			opts = append(opts, api.WithAPIKey(*apiKey))
		}
		client, err := api.NewClient(*addr, opts...)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		resp, err := client.Filter(ctx, &req)
		if err != nil {
			return err
		}
		return writeJSON(out, resp)
	}

	cfg := rse.DefaultConfig()
	if *profile != "" {
		var err error
		if cfg, err = config.LoadProfile(*profile, cfg); err != nil {
			return err
		}
	}
	cfg = cfg.Apply(req.Options)

	result, err := rse.Filter(req.Batch, cfg)
	if err != nil {
		return err
	}
	return writeJSON(out, api.FilterResponse{Result: *result, Config: cfg})
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	subject := fs.String("subject", "", "token subject")
	expiry := fs.Duration("expiry", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" || *subject == "" {
		return errors.New("token: -secret and -subject are required")
	}

	token, err := auth.NewJWTManager(auth.DefaultJWTConfig(*secret)).GenerateTokenWithExpiry(*subject, *expiry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
