package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/splax/servertracker/pkg/client"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "env":
		err = commandEnv(args)
	case "server":
		err = commandServer(args)
	case "watch":
		err = commandWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("trackerctl %s\n", buildVersion)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// session holds the flags every subcommand shares.
type session struct {
	url     *string
	timeout *time.Duration
	output  *string
}

func newFlagSet(name string) (*flag.FlagSet, session) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	s := session{
		url:     fs.String("url", envOr("TRACKER_URL", "localhost:5000"), "tracker address"),
		timeout: fs.Duration("timeout", 15*time.Second, "request timeout"),
		output:  fs.StringP("output", "o", "", "output format (table|json); defaults to table on a terminal"),
	}
	return fs, s
}

func (s session) connect(ctx context.Context) (*client.Conn, error) {
	cli, err := client.New(*s.url)
	if err != nil {
		return nil, err
	}
	return cli.Dial(ctx)
}

func (s session) run(fn func(ctx context.Context, conn *client.Conn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), *s.timeout)
	defer cancel()
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func (s session) jsonOutput() bool {
	switch strings.ToLower(*s.output) {
	case "json":
		return true
	case "table":
		return false
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

func commandEnv(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: trackerctl env <list|create|rm>")
	}
	sub := args[0]
	fs, s := newFlagSet("env " + sub)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch sub {
	case "list", "ls":
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			envs, err := conn.Environments(ctx)
			if err != nil {
				return err
			}
			return printEnvironments(os.Stdout, envs, s.jsonOutput())
		})
	case "create":
		name := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if name == "" {
			return errors.New("usage: trackerctl env create <name>")
		}
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			envs, err := conn.CreateEnvironment(ctx, name)
			if err != nil {
				return err
			}
			return printEnvironments(os.Stdout, envs, s.jsonOutput())
		})
	case "rm", "remove":
		id, err := idArg(fs.Args())
		if err != nil {
			return err
		}
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			envs, err := conn.RemoveEnvironment(ctx, id)
			if err != nil {
				return err
			}
			return printEnvironments(os.Stdout, envs, s.jsonOutput())
		})
	default:
		return fmt.Errorf("unknown env command: %s", sub)
	}
}

func commandServer(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: trackerctl server <list|create|update|rm>")
	}
	sub := args[0]
	fs, s := newFlagSet("server " + sub)
	envID := fs.Int64("env", 0, "environment id")
	id := fs.Int64("id", 0, "server id (update)")
	name := fs.String("name", "", "server name")
	domain := fs.String("domain", "", "domain name")
	ip := fs.String("ip", "", "IPv4 address")
	osName := fs.String("os", "", "operating system")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch sub {
	case "list", "ls":
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			var (
				servers []client.Server
				err     error
			)
			if fs.Changed("env") {
				servers, err = conn.ServersForEnvironment(ctx, *envID)
			} else {
				servers, err = conn.Servers(ctx)
			}
			if err != nil {
				return err
			}
			return printServers(os.Stdout, servers, s.jsonOutput())
		})
	case "create":
		server := client.Server{
			EnvironmentID:   *envID,
			Name:            *name,
			DomainName:      *domain,
			IPAddress:       *ip,
			OperatingSystem: *osName,
		}
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			servers, err := conn.CreateServer(ctx, server)
			if err != nil {
				return err
			}
			return printServers(os.Stdout, servers, s.jsonOutput())
		})
	case "update":
		if *id <= 0 {
			return errors.New("--id is required")
		}
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			servers, err := conn.Servers(ctx)
			if err != nil {
				return err
			}
			current, ok := findServer(servers, *id)
			if !ok {
				return fmt.Errorf("server %d not found", *id)
			}
			if fs.Changed("env") {
				current.EnvironmentID = *envID
			}
			if fs.Changed("name") {
				current.Name = *name
			}
			if fs.Changed("domain") {
				current.DomainName = *domain
			}
			if fs.Changed("ip") {
				current.IPAddress = *ip
			}
			if fs.Changed("os") {
				current.OperatingSystem = *osName
			}
			servers, err = conn.UpdateServer(ctx, current)
			if err != nil {
				return err
			}
			return printServers(os.Stdout, servers, s.jsonOutput())
		})
	case "rm", "remove":
		target, err := idArg(fs.Args())
		if err != nil {
			return err
		}
		return s.run(func(ctx context.Context, conn *client.Conn) error {
			servers, err := conn.RemoveServer(ctx, target)
			if err != nil {
				return err
			}
			return printServers(os.Stdout, servers, s.jsonOutput())
		})
	default:
		return fmt.Errorf("unknown server command: %s", sub)
	}
}

func commandWatch(args []string) error {
	fs, s := newFlagSet("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, *s.timeout)
	conn, err := s.connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	asJSON := s.jsonOutput()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-conn.Messages():
			if !ok {
				return errors.New("connection closed by tracker")
			}
			if err := printMessage(os.Stdout, msg, asJSON); err != nil {
				return err
			}
		}
	}
}

func printMessage(w io.Writer, msg client.Message, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(msg)
	}
	fmt.Fprintf(w, "%s  %s\n", time.Now().Format(time.TimeOnly), msg.Type)
	switch msg.Type {
	case client.TypeEnvironmentsAll:
		var envs []client.Environment
		if err := json.Unmarshal(msg.Data, &envs); err != nil {
			return err
		}
		return printEnvironments(w, envs, false)
	case client.TypeServersAll, client.TypeServersForEnvironment:
		var servers []client.Server
		if err := json.Unmarshal(msg.Data, &servers); err != nil {
			return err
		}
		return printServers(w, servers, false)
	case client.TypeServerError:
		_, err := fmt.Fprintf(w, "  %s\n", msg.Message)
		return err
	}
	return nil
}

func printEnvironments(w io.Writer, envs []client.Environment, asJSON bool) error {
	if asJSON {
		return writeJSON(w, envs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED")
	for _, env := range envs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", env.ID, env.Name, env.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printServers(w io.Writer, servers []client.Server, asJSON bool) error {
	if asJSON {
		return writeJSON(w, servers)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENV\tNAME\tDOMAIN\tIP\tOS")
	for _, s := range servers {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", s.ID, s.EnvironmentID, s.Name, s.DomainName, s.IPAddress, s.OperatingSystem)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func findServer(servers []client.Server, id int64) (client.Server, bool) {
	for _, s := range servers {
		if s.ID == id {
			return s, true
		}
	}
	return client.Server{}, false
}

func idArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("exactly one id argument is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println(`trackerctl - command line client for the server tracker

Usage:
  trackerctl env list|create <name>|rm <id>
  trackerctl server list [--env ID]
  trackerctl server create --env ID --name NAME --domain DOMAIN --ip IP --os OS
  trackerctl server update --id ID [--env ID] [--name NAME] [--domain DOMAIN] [--ip IP] [--os OS]
  trackerctl server rm <id>
  trackerctl watch

Common flags:
  --url      tracker address (env TRACKER_URL, default localhost:5000)
  --timeout  request timeout
  -o         output format: table or json`)
}
