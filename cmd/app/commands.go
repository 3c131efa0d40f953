package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/intentmarket/internal"
	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/api"
	"github.com/starford/intentmarket/internal/intentdoc"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/models"
	"github.com/starford/intentmarket/internal/program"
	pkgconfig "github.com/starford/intentmarket/pkg/config"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveProgramID prefers --program-id, then the config file, then the
// built-in default when no config file exists.
func resolveProgramID(cmd *cli.Command) (address.Pubkey, error) {
	if s := cmd.String("program-id"); s != "" {
		return address.Parse(s)
	}
	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(cmd.String("config"), cfg)
	if err != nil {
		return address.Zero, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		return program.DefaultID, nil
	}
	return cfg.Ledger.ProgramPubkey()
}

func programIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "program-id",
		Usage:   "Program id (hex); defaults to ledger.program_id from the config file",
		Sources: cli.EnvVars("INTENTMARKET_PROGRAM_ID"),
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:      "keygen",
		Usage:     "Generate an agent key",
		ArgsUsage: "<key-file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("keygen: key file path is required")
			}
			agent, err := writeKey(path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, agent)
			return err
		},
	}
}

func deriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Compute the canonical intent or match address",
		Flags: []cli.Flag{
			programIDFlag(),
			&cli.StringFlag{Name: "agent", Usage: "Agent public key (hex)"},
			&cli.StringFlag{Name: "key", Usage: "Agent key file, instead of --agent"},
			&cli.StringFlag{Name: "intent-a", Usage: "First intent address (hex)"},
			&cli.StringFlag{Name: "intent-b", Usage: "Second intent address (hex)"},
		},
		Action: derive,
	}
}

type derived struct {
	Seed    string `json:"seed"`
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

func derive(ctx context.Context, cmd *cli.Command) error {
	programID, err := resolveProgramID(cmd)
	if err != nil {
		return err
	}

	if cmd.String("intent-a") != "" || cmd.String("intent-b") != "" {
		a, err := address.Parse(cmd.String("intent-a"))
		if err != nil {
			return fmt.Errorf("--intent-a: %w", err)
		}
		b, err := address.Parse(cmd.String("intent-b"))
		if err != nil {
			return fmt.Errorf("--intent-b: %w", err)
		}
		addr, bump, err := program.MatchAddress(a, b, programID)
		if err != nil {
			return err
		}
		return printJSON(cmd.Root().Writer, derived{Seed: models.MatchSeed, Address: addr.String(), Bump: bump})
	}

	agent, err := agentFrom(cmd)
	if err != nil {
		return err
	}
	addr, bump, err := program.IntentAddress(agent, programID)
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, derived{Seed: models.IntentSeed, Address: addr.String(), Bump: bump})
}

func agentFrom(cmd *cli.Command) (address.Pubkey, error) {
	if s := cmd.String("agent"); s != "" {
		return address.Parse(s)
	}
	if path := cmd.String("key"); path != "" {
		key, err := readKey(path)
		if err != nil {
			return address.Zero, err
		}
		return address.FromPublicKey(key.Public().(ed25519.PublicKey))
	}
	return address.Zero, fmt.Errorf("one of --agent or --key is required")
}

func txCommand() *cli.Command {
	return &cli.Command{
		Name:  "tx",
		Usage: "Build and sign transactions, optionally submitting them",
		Flags: []cli.Flag{
			programIDFlag(),
			&cli.StringFlag{Name: "key", Usage: "Signing key file", Required: true, Sources: cli.EnvVars("INTENTMARKET_KEY")},
			&cli.StringFlag{Name: "submit", Usage: "API root to submit to, e.g. http://localhost:8080/api"},
			&cli.StringFlag{Name: "token", Usage: "Bearer credential for --submit", Sources: cli.EnvVars("INTENTMARKET_TOKEN")},
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register the signer's intent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Markdown intent manifest"},
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "category"},
				},
				Action: txRegister,
			},
			{
				Name:  "propose",
				Usage: "Propose a match between the signer's intent and another",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "intent-a", Usage: "Signer's intent address (hex); derived from the key when empty"},
					&cli.StringFlag{Name: "intent-b", Usage: "Counterpart intent address (hex)", Required: true},
					&cli.UintFlag{Name: "score", Usage: "Match score in basis points (0..10000)"},
				},
				Action: txPropose,
			},
			{
				Name:  "status",
				Usage: "Update the status of a match, or of the signer's intent with --intent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "match", Usage: "Match address (hex)"},
					&cli.BoolFlag{Name: "intent", Usage: "Update the signer's own intent"},
					&cli.StringFlag{Name: "status", Usage: "Status name (match: pending|accepted|rejected|completed, intent: active|fulfilled|cancelled) or a raw code", Required: true},
				},
				Action: txStatus,
			},
		},
	}
}

func registerArgs(cmd *cli.Command) (program.RegisterIntentArgs, error) {
	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return program.RegisterIntentArgs{}, fmt.Errorf("read manifest: %w", err)
		}
		m, err := intentdoc.Parse(data)
		if err != nil {
			return program.RegisterIntentArgs{}, err
		}
		return m.Args()
	}
	if cmd.String("title") == "" {
		return program.RegisterIntentArgs{}, fmt.Errorf("one of --file or --title is required")
	}
	args := program.RegisterIntentArgs{Title: cmd.String("title"), Description: cmd.String("description")}
	if cmd.IsSet("category") {
		cat := cmd.String("category")
		args.Category = &cat
	}
	return args, args.Validate()
}

func txRegister(ctx context.Context, cmd *cli.Command) error {
	key, err := readKey(cmd.String("key"))
	if err != nil {
		return err
	}
	programID, err := resolveProgramID(cmd)
	if err != nil {
		return err
	}
	args, err := registerArgs(cmd)
	if err != nil {
		return err
	}
	tx, err := ledger.RegisterIntentTx(programID, key, args)
	if err != nil {
		return err
	}
	return emit(ctx, cmd, tx)
}

func txPropose(ctx context.Context, cmd *cli.Command) error {
	key, err := readKey(cmd.String("key"))
	if err != nil {
		return err
	}
	programID, err := resolveProgramID(cmd)
	if err != nil {
		return err
	}

	var intentA address.Pubkey
	if s := cmd.String("intent-a"); s != "" {
		if intentA, err = address.Parse(s); err != nil {
			return fmt.Errorf("--intent-a: %w", err)
		}
	} else {
		agent, err := address.FromPublicKey(key.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		if intentA, _, err = program.IntentAddress(agent, programID); err != nil {
			return err
		}
	}
	intentB, err := address.Parse(cmd.String("intent-b"))
	if err != nil {
		return fmt.Errorf("--intent-b: %w", err)
	}
	score := cmd.Uint("score")
	if score > models.MaxMatchScore {
		return fmt.Errorf("--score %d exceeds %d", score, models.MaxMatchScore)
	}

	tx, err := ledger.ProposeMatchTx(programID, key, intentA, intentB, uint16(score))
	if err != nil {
		return err
	}
	return emit(ctx, cmd, tx)
}

// parseStatusCode accepts a status name understood by parse, or a raw u8
// code. Raw codes are passed through unchecked so the program decides their
// validity.
func parseStatusCode[S ~uint8](s string, parse func(string) (S, error)) (uint8, error) {
	if st, err := parse(strings.ToLower(s)); err == nil {
		return uint8(st), nil
	}
	code, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("--status %q is neither a status name nor a code 0..255", s)
	}
	return uint8(code), nil
}

func txStatus(ctx context.Context, cmd *cli.Command) error {
	key, err := readKey(cmd.String("key"))
	if err != nil {
		return err
	}
	if cmd.Bool("intent") == cmd.IsSet("match") {
		return fmt.Errorf("exactly one of --match or --intent is required")
	}

	var tx *ledger.Transaction
	if cmd.Bool("intent") {
		programID, err := resolveProgramID(cmd)
		if err != nil {
			return err
		}
		code, err := parseStatusCode(cmd.String("status"), models.ParseIntentStatus)
		if err != nil {
			return err
		}
		if tx, err = ledger.UpdateIntentStatusTx(programID, key, code); err != nil {
			return err
		}
		return emit(ctx, cmd, tx)
	}

	match, err := address.Parse(cmd.String("match"))
	if err != nil {
		return fmt.Errorf("--match: %w", err)
	}
	code, err := parseStatusCode(cmd.String("status"), models.ParseMatchStatus)
	if err != nil {
		return err
	}
	if tx, err = ledger.UpdateMatchStatusTx(key, match, code); err != nil {
		return err
	}
	return emit(ctx, cmd, tx)
}

// emit prints the wire form of tx, or submits it when --submit is set and
// prints the receipt.
func emit(ctx context.Context, cmd *cli.Command, tx *ledger.Transaction) error {
	out := cmd.Root().Writer
	base := cmd.String("submit")
	if base == "" {
		wire, err := tx.Encode()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, wire)
		return err
	}

	client, err := api.NewClient(api.ClientConfig{BaseURL: base, Token: cmd.String("token")})
	if err != nil {
		return err
	}
	receipt, err := client.Submit(ctx, tx)
	if err != nil {
		return err
	}
	return printJSON(out, receipt)
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print a stored account, or the journal",
		ArgsUsage: "[address]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Usage: "Look up the intent of this agent (hex)"},
			&cli.IntFlag{Name: "journal", Usage: "Print the newest N journal entries instead"},
		},
		Action: inspect,
	}
}

func inspect(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l, store, err := internal.OpenLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.Root().Writer
	if n := cmd.Int("journal"); n > 0 {
		entries, err := l.Journal(ctx, int(n), 0)
		if err != nil {
			return err
		}
		return printJSON(out, entries)
	}

	if s := cmd.String("agent"); s != "" {
		agent, err := address.Parse(s)
		if err != nil {
			return fmt.Errorf("--agent: %w", err)
		}
		view, err := l.IntentOf(ctx, agent)
		if err != nil {
			return err
		}
		return printJSON(out, view)
	}

	addr, err := address.Parse(cmd.Args().First())
	if err != nil {
		return fmt.Errorf("inspect: address: %w", err)
	}
	acct, err := l.Account(ctx, addr)
	if err != nil {
		return err
	}
	switch acct.Kind {
	case models.KindIntent:
		view, err := l.Intent(ctx, addr)
		if err != nil {
			return err
		}
		return printJSON(out, view)
	case models.KindMatch:
		view, err := l.Match(ctx, addr)
		if err != nil {
			return err
		}
		return printJSON(out, view)
	default:
		return printJSON(out, acct)
	}
}
