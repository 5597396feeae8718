package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/text/unicode/norm"

	"rbtchain/cmd/internal/passphrase"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/native/ringback"
)

const defaultKeystore = "./wallet.json"

var newPassphraseSource = func(label string) func() (string, error) {
	return passphrase.NewSource(passphrase.EnvVar, label).Get
}

// normalizeText folds user supplied text into Unicode NFC.
func normalizeText(value string) string {
	return norm.NFC.String(value)
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := newPassphraseSource("wallet keystore")()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

// submit signs an instruction with the next nonce of key and sends it.
func submit(key *crypto.PrivateKey, kind types.InstructionType, args interface{}) (json.RawMessage, *rpcError, error) {
	caller := crypto.FormatAddress(key.PubKey().Identity())
	raw, rpcErr, err := rpcCall("rbt_getNonce", []interface{}{caller})
	if err != nil || rpcErr != nil {
		return nil, rpcErr, err
	}
	var nonce uint64
	if err := json.Unmarshal(raw, &nonce); err != nil {
		return nil, nil, fmt.Errorf("decode nonce: %w", err)
	}
	data, err := ringback.EncodeArgs(args)
	if err != nil {
		return nil, nil, err
	}
	tx := &types.Transaction{Type: kind, Nonce: nonce, Data: data}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, nil, fmt.Errorf("sign transaction: %w", err)
	}
	encoded, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return rpcCall("rbt_sendTransaction", []interface{}{hexutil.Encode(encoded)})
}

func finish(stdout, stderr io.Writer, result json.RawMessage, rpcErr *rpcError, err error) int {
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", defaultKeystore, "path of the keystore file to create")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		fmt.Fprintf(stderr, "Error: %s already exists (use --force to overwrite)\n", *out)
		return 1
	}
	pass, err := newPassphraseSource("new keystore")()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", *out)
	fmt.Fprintf(stdout, "Identity: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keystore := fs.String("keystore", defaultKeystore, "keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadKey(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runSetupPlatform(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("setup-platform", stderr)
	keystore := fs.String("keystore", defaultKeystore, "operator keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadKey(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, rpcErr, err := submit(key, types.InstructionSetupPlatform, nil)
	return finish(stdout, stderr, result, rpcErr, err)
}

func runSignUp(args []string, stdout, stderr io.Writer, artist bool) int {
	name, kind := "sign-up-fan", types.InstructionSignUpFan
	if artist {
		name, kind = "sign-up-artist", types.InstructionSignUpArtist
	}
	fs := newFlagSet(name, stderr)
	keystore := fs.String("keystore", defaultKeystore, "keystore file of the profile owner")
	display := fs.String("name", "", "display name")
	profileURL := fs.String("url", "", "profile url")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadKey(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, rpcErr, err := submit(key, kind, ringback.SignUpArgs{
		Name:       normalizeText(*display),
		ProfileURL: *profileURL,
	})
	return finish(stdout, stderr, result, rpcErr, err)
}

func runUploadTone(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("upload-tone", stderr)
	keystore := fs.String("keystore", defaultKeystore, "artist keystore file")
	audioName := fs.String("name", "", "audio name")
	audioCode := fs.Uint("code", 0, "audio code (1-255)")
	audioURL := fs.String("url", "", "audio url")
	price := fs.Uint64("price", 0, "subscription price")
	duration := fs.String("duration", "", "subscription duration label")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if *audioCode > 255 {
		fmt.Fprintln(stderr, "Error: --code must fit in one byte")
		return 1
	}
	key, err := loadKey(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, rpcErr, err := submit(key, types.InstructionUploadTone, ringback.UploadArgs{
		AudioName: normalizeText(*audioName),
		AudioCode: uint8(*audioCode),
		AudioURL:  *audioURL,
		Price:     *price,
		Duration:  normalizeText(*duration),
	})
	return finish(stdout, stderr, result, rpcErr, err)
}

func runSubscribe(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("subscribe", stderr)
	keystore := fs.String("keystore", defaultKeystore, "fan keystore file")
	sequence := fs.Uint64("tone", 0, "tone sequence")
	amount := fs.Uint64("amount", 0, "amount to pay")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadKey(*keystore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, rpcErr, err := submit(key, types.InstructionSubscribe, ringback.SubscribeArgs{
		ToneSequence: *sequence,
		Amount:       *amount,
	})
	return finish(stdout, stderr, result, rpcErr, err)
}

// runQuery handles read commands taking an optional --addr.
func runQuery(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	addr := fs.String("addr", "", "bech32 identity")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	var params []interface{}
	if method != "rbt_getPlatform" {
		trimmed := strings.TrimSpace(*addr)
		if trimmed == "" {
			fmt.Fprintln(stderr, "Error: --addr is required")
			return 1
		}
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			fmt.Fprintf(stderr, "Error: invalid --addr: %v\n", err)
			return 1
		}
		params = append(params, trimmed)
	}
	result, rpcErr, err := rpcCall(method, params)
	return finish(stdout, stderr, result, rpcErr, err)
}

func runTone(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("tone", stderr)
	sequence := fs.Uint64("seq", 0, "tone sequence")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	result, rpcErr, err := rpcCall("rbt_getTone", []interface{}{*sequence})
	return finish(stdout, stderr, result, rpcErr, err)
}

func runSubscriptions(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("subscriptions", stderr)
	fan := fs.String("fan", "", "filter by fan identity")
	artist := fs.String("artist", "", "filter by artist identity")
	sequence := fs.Int64("tone", -1, "filter by tone sequence")
	limit := fs.Int("limit", 0, "maximum rows")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	filter := map[string]interface{}{}
	if v := strings.TrimSpace(*fan); v != "" {
		filter["fan"] = v
	}
	if v := strings.TrimSpace(*artist); v != "" {
		filter["artist"] = v
	}
	if *sequence >= 0 {
		filter["sequence"] = *sequence
	}
	if *limit > 0 {
		filter["limit"] = *limit
	}
	result, rpcErr, err := rpcCall("rbt_listSubscriptions", []interface{}{filter})
	return finish(stdout, stderr, result, rpcErr, err)
}
