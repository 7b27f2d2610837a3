/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/timetablegenerator/ttg-legacy/internal/client"
	"github.com/timetablegenerator/ttg-legacy/internal/codec"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

const tokenEnv = "LEGACY_POST_KEY"

// globals holds the options shared by every command
type globals struct {
	url       string
	token     string
	tokenFile string
	verbose   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobals(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "push":
		return handlePush(g, commandArgs, stdout, stderr)
	case "fetch":
		return handleFetch(g, commandArgs, stdout, stderr)
	case "refresh":
		return handleRefresh(g, commandArgs, stdout, stderr)
	case "list":
		return handleList(g, commandArgs, stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
}

// parseGlobals consumes the global flags up to the first command word
func parseGlobals(args []string) (*globals, []string, error) {
	g := &globals{url: "http://localhost:8000"}
	fs := flag.NewFlagSet("ttg-legacy-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&g.url, "url", g.url, "Service base URL")
	fs.StringVar(&g.token, "token", "", "Shared secret for writes and refreshes")
	fs.StringVar(&g.tokenFile, "token-file", "", "File containing the shared secret")
	fs.BoolVar(&g.verbose, "v", false, "Verbose output")
	fs.BoolVar(&g.verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return g, fs.Args(), nil
}

// resolveToken picks --token, then --token-file, then LEGACY_POST_KEY
func (g *globals) resolveToken() (string, error) {
	if g.token != "" {
		return g.token, nil
	}
	if g.tokenFile != "" {
		data, err := os.ReadFile(filepath.Clean(g.tokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("token file is empty")
		}
		return token, nil
	}
	return os.Getenv(tokenEnv), nil
}

func (g *globals) client(stderr io.Writer) (*client.Client, error) {
	token, err := g.resolveToken()
	if err != nil {
		return nil, err
	}
	c := client.New(g.url, token, nil)
	if g.verbose {
		c.Trace = func(format string, args ...interface{}) {
			fmt.Fprintf(stderr, format+"\n", args...)
		}
	}
	return c, nil
}

// keyArgs parses <level> <school> and returns the remaining flags
func keyArgs(name string, args []string, stderr io.Writer) (types.ScheduleKey, []string, bool) {
	if len(args) < 2 {
		fmt.Fprintf(stderr, "Usage: ttg-legacy-admin %s <level> <school> [flags]\n", name)
		return types.ScheduleKey{}, nil, false
	}
	key, err := types.NewScheduleKey(args[0], args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return types.ScheduleKey{}, nil, false
	}
	return key, args[2:], true
}

func handlePush(g *globals, args []string, stdout, stderr io.Writer) int {
	key, rest, ok := keyArgs("push", args, stderr)
	if !ok {
		return 1
	}

	pushFlags := flag.NewFlagSet("push", flag.ContinueOnError)
	pushFlags.SetOutput(stderr)
	var file string
	var compress bool
	pushFlags.StringVar(&file, "f", "", "Snapshot file to upload (required, - for stdin)")
	pushFlags.StringVar(&file, "file", "", "Snapshot file to upload (required, - for stdin)")
	pushFlags.BoolVar(&compress, "gzip", false, "Gzip the body before sending")
	if err := pushFlags.Parse(rest); err != nil {
		return 1
	}
	if file == "" {
		fmt.Fprintf(stderr, "Error: Snapshot file is required (-f or --file flag)\n")
		return 1
	}

	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filepath.Clean(file))
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read snapshot file: %v\n", err)
		return 1
	}

	// Reject locally what the service would reject
	doc, err := codec.Parse(data)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid snapshot file: %v\n", err)
		return 1
	}

	c, err := g.client(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	msg, err := c.Push(context.Background(), key.Level, key.SchoolID, doc, compress)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to push snapshot: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, msg)
	return 0
}

func handleFetch(g *globals, args []string, stdout, stderr io.Writer) int {
	key, rest, ok := keyArgs("fetch", args, stderr)
	if !ok {
		return 1
	}

	fetchFlags := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fetchFlags.SetOutput(stderr)
	var asYAML bool
	fetchFlags.BoolVar(&asYAML, "yaml", false, "Ask for the YAML rendering")
	if err := fetchFlags.Parse(rest); err != nil {
		return 1
	}

	c, err := g.client(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	body, err := c.Fetch(context.Background(), key.Level, key.SchoolID, asYAML)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to fetch snapshot: %v\n", err)
		return 1
	}

	if asYAML {
		fmt.Fprint(stdout, string(body))
		return 0
	}
	pretty, err := json.MarshalIndent(json.RawMessage(body), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Failed to format snapshot: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(pretty))
	return 0
}

func handleRefresh(g *globals, args []string, stdout, stderr io.Writer) int {
	key, _, ok := keyArgs("refresh", args, stderr)
	if !ok {
		return 1
	}

	c, err := g.client(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	msg, err := c.Refresh(context.Background(), key.Level, key.SchoolID)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to refresh snapshot: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, msg)
	return 0
}

func handleList(g *globals, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "Usage: ttg-legacy-admin list <level>\n")
		return 1
	}
	level, err := types.ParseAPILevel(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	c, err := g.client(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	list, err := c.List(context.Background(), level)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to list schools: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Found %d school(s) under %s:\n\n", list.Count, level.Segment())
	for _, id := range list.Schools {
		fmt.Fprintf(stdout, "  %s\n", id)
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "TTG Legacy Admin Tool")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: ttg-legacy-admin [global-flags] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Global Flags:")
	fmt.Fprintln(w, "  --url <url>               Service URL (default: http://localhost:8000)")
	fmt.Fprintln(w, "  --token <secret>          Shared secret for push and refresh")
	fmt.Fprintln(w, "  --token-file <file>       File containing the shared secret")
	fmt.Fprintln(w, "  -v, --verbose             Verbose output")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "The secret falls back to $%s when neither flag is given.\n", tokenEnv)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  push <level> <school> -f <file> [--gzip]   Upload a snapshot")
	fmt.Fprintln(w, "  fetch <level> <school> [--yaml]            Print the stored snapshot")
	fmt.Fprintln(w, "  refresh <level> <school>                   Reload the cached copy from disk")
	fmt.Fprintln(w, "  list <level>                               List stored schools")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  ttg-legacy-admin --token-file post.key push V1 uoft -f uoft.json --gzip")
	fmt.Fprintln(w, "  ttg-legacy-admin fetch V2 waterloo --yaml")
	fmt.Fprintln(w, "  ttg-legacy-admin --url http://ttg.example.com refresh V1 uoft")
}
