package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var lookupEnv = os.Getenv

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "setup-platform":
		return runSetupPlatform(args[1:], stdout, stderr)
	case "sign-up-artist":
		return runSignUp(args[1:], stdout, stderr, true)
	case "sign-up-fan":
		return runSignUp(args[1:], stdout, stderr, false)
	case "upload-tone":
		return runUploadTone(args[1:], stdout, stderr)
	case "subscribe":
		return runSubscribe(args[1:], stdout, stderr)
	case "platform":
		return runQuery("platform", "rbt_getPlatform", args[1:], stdout, stderr)
	case "tone":
		return runTone(args[1:], stdout, stderr)
	case "artist":
		return runQuery("artist", "rbt_getArtist", args[1:], stdout, stderr)
	case "fan":
		return runQuery("fan", "rbt_getFan", args[1:], stdout, stderr)
	case "balance":
		return runQuery("balance", "rbt_getBalance", args[1:], stdout, stderr)
	case "subscriptions":
		return runSubscriptions(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  rbt-cli [--rpc URL] <command> [flags]

Keys:
  keygen          Create an encrypted keystore for a new identity
  address         Print the identity of a keystore

Transactions:
  setup-platform  Register the platform operator
  sign-up-artist  Create an artist profile
  sign-up-fan     Create a fan profile
  upload-tone     Upload a ring-back-tone
  subscribe       Subscribe to a tone by sequence

Queries:
  platform        Show the platform record
  tone            Show a tone by sequence
  artist          Show an artist profile (--addr)
  fan             Show a fan profile (--addr)
  balance         Show balance and nonce (--addr)
  subscriptions   List indexed subscriptions

The keystore passphrase is read from RBT_KEYSTORE_PASSPHRASE or prompted.`)
}
