// ABOUTME: CLI flag parsing using stdlib flag package
// ABOUTME: Supports --base-url, --store, --state-dir, --key, --prompts, --group, --private, --verbose, --version

package main

import "flag"

type cliArgs struct {
	baseURL  string
	store    string
	stateDir string
	key      string
	prompts  string
	group    string
	private  string
	message  string
	verbose  bool
	version  bool
}

func parseFlags() cliArgs {
	var args cliArgs

	flag.StringVar(&args.baseURL, "base-url", "http://localhost:8000", "Gateway base URL")
	flag.StringVar(&args.store, "store", "sqlite", "State backend: sqlite or file")
	flag.StringVar(&args.stateDir, "state-dir", "", "State directory (default ~/.omnitalk)")
	flag.StringVar(&args.key, "key", "", "Store this API key and use it")
	flag.StringVar(&args.prompts, "prompts", "", "YAML manifest of per-model system prompts")
	flag.StringVar(&args.group, "group", "", "Start in this group (default the all-members group)")
	flag.StringVar(&args.private, "private", "", "Start in a private chat with this model (e.g. claude)")
	flag.StringVar(&args.message, "message", "", "Send one message and exit instead of starting the REPL")
	flag.BoolVar(&args.verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&args.version, "version", false, "Show version and exit")

	flag.Parse()
	return args
}
