package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// errInvalidOption marks option values that cannot be parsed or are out of range.
var errInvalidOption = errors.New("invalid option")

// newStore builds the object store for the configured backend. Tests swap it for a fake.
var newStore = newObjectStore

// processCmdLineFlags wraps the command line flags handling.
func processCmdLineFlags(fs *flag.FlagSet, opts *options) {
	fs.StringVar(&opts.BucketName, "bucket", opts.BucketName, "Bucket to upload the file to")
	fs.StringVar(&opts.Region, "region", opts.Region, "AWS region")
	fs.StringVar(&opts.Endpoint, "endpoint", opts.Endpoint, "S3 compatible endpoint URL (blank for AWS)")
	fs.BoolVar(&opts.PathStyle, "path-style", opts.PathStyle, "Use path style addressing")
	fs.StringVar(&opts.Profile, "profile", opts.Profile, "AWS shared profile")
	fs.StringVar(&opts.Backend, "backend", opts.Backend, "Client library to use: aws or minio")
	fs.StringVar(&opts.ChecksumAlgorithm, "checksum-algorithm", opts.ChecksumAlgorithm, "Checksum algorithm: "+strings.Join(checksumAlgorithms, ", "))
	fs.StringVar(&opts.RequestChecksumCalculation, "request-checksum", opts.RequestChecksumCalculation, "Request checksum calculation: when_supported or when_required")
	fs.StringVar(&opts.ResponseChecksumValidation, "response-checksum", opts.ResponseChecksumValidation, "Response checksum validation: when_supported or when_required")
	fs.BoolVar(&opts.ChunkedEncoding, "chunked", opts.ChunkedEncoding, "Request chunked payload encoding")
	fs.StringVar(&opts.ServerSideEncryption, "sse", opts.ServerSideEncryption, "Server side encryption: NONE, AES256 or aws:kms")
	fs.BoolVar(&opts.WithSHAHeader, "sha-header", opts.WithSHAHeader, "Send the local SHA-256 as checksum header")
	fs.StringVar(&opts.ChecksumEncoding, "checksum-encoding", opts.ChecksumEncoding, "Checksum header encoding: base64 or hex")
	fs.BoolVar(&opts.DummyChecksum, "dummy-checksum", opts.DummyChecksum, "Send a bogus checksum header value")
	fs.BoolVar(&opts.InsecureTLS, "insecure", opts.InsecureTLS, "Trust any TLS certificate")
	fs.BoolVar(&opts.CreateBucket, "create", opts.CreateBucket, "Create the bucket before uploading")
	fs.BoolVar(&opts.Verify, "verify", opts.Verify, "List the bucket and re-hash every object after uploading")
	fs.StringVar(&opts.File, "file", opts.File, "File to upload")
	fs.StringVar(&opts.CacheFile, "cachefile", opts.CacheFile, "Location of the upload cache (blank disables it)")
	fs.IntVar(&opts.MaxRetries, "retries", opts.MaxRetries, "Max SDK retries (-1 keeps the SDK default)")
	fs.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Log format: console or json")
	fs.StringVar(&opts.cfgFile, "cfgfile", opts.cfgFile, "Config file location (.json, .toml or .properties)")
	fs.BoolVar(&opts.verbose, "verbose", opts.verbose, "Log debug messages")
	fs.BoolVar(&opts.quiet, "quiet", opts.quiet, "Log only warnings and errors")
	fs.BoolVar(&opts.strict, "strict", opts.strict, "Exit with a non zero code when any step fails")
	fs.BoolVar(&opts.saveCfg, "save", opts.saveCfg, "Saves the current options to the config file")
}

// setupOptions resolves the options from defaults, config file, environment and
// command line, in that order of precedence.
func setupOptions(args []string, getenv func(string) string) (*options, error) {
	// First pass only finds the config file to use.
	firstPass := defaultOptions(getenv)
	if _, err := parseCmdLine(args, firstPass); err != nil {
		return nil, err
	}

	opts := defaultOptions(getenv)
	opts.cfgFile = firstPass.cfgFile
	if err := opts.restore(opts.cfgFile); err != nil {
		return nil, err
	}
	if err := opts.applyEnv(getenv); err != nil {
		return nil, err
	}

	fs, err := parseCmdLine(args, opts)
	if err != nil {
		return nil, err
	}

	fileFlag := false
	fs.Visit(func(f *flag.Flag) {
		fileFlag = fileFlag || f.Name == "file"
	})
	if fs.NArg() > 0 && !fileFlag {
		opts.File = fs.Arg(0)
	}

	opts.ChecksumAlgorithm = strings.ToUpper(opts.ChecksumAlgorithm)
	opts.RequestChecksumCalculation = strings.ToLower(opts.RequestChecksumCalculation)
	opts.ResponseChecksumValidation = strings.ToLower(opts.ResponseChecksumValidation)

	return opts, nil
}

func parseCmdLine(args []string, opts *options) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet("go3verify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	processCmdLineFlags(fs, opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errInvalidOption, err)
	}

	return fs, nil
}

// usage prints the flags with their default values.
func usage(w io.Writer) {
	fs := flag.NewFlagSet("go3verify", flag.ContinueOnError)
	fs.SetOutput(w)
	processCmdLineFlags(fs, defaultOptions(func(string) string { return "" }))
	fmt.Fprintln(w, "Usage: go3verify [flags] [file]")
	fs.PrintDefaults()
}

// validateCmdLineFlags validates the option values. Defers actual validation to validateCmdLineFlag().
// The file to upload is deliberately not checked here: a missing file is reported by the upload run.
func validateCmdLineFlags(opts *options) (err error) {
	flags := []struct{ label, val string }{
		{"Bucket Name", opts.BucketName},
		{"Backend", opts.Backend},
		{"Checksum algorithm", opts.ChecksumAlgorithm},
		{"Request checksum calculation", opts.RequestChecksumCalculation},
		{"Response checksum validation", opts.ResponseChecksumValidation},
		{"Server side encryption", opts.ServerSideEncryption},
		{"Checksum encoding", opts.ChecksumEncoding},
		{"Log format", opts.LogFormat},
	}
	for _, f := range flags {
		if err = validateCmdLineFlag(f.label, f.val); err != nil {
			return
		}
	}
	if opts.verbose && opts.quiet {
		return fmt.Errorf("%w: verbose and quiet are mutually exclusive", errInvalidOption)
	}
	return
}

// validateCmdLineFlag handles the actual validation of flags.
func validateCmdLineFlag(label, val string) (err error) {
	switch label {
	case "Bucket Name":
		if val == "" {
			return fmt.Errorf("%w: %s is not set", errInvalidOption, label)
		}
	case "Backend":
		return oneOf(label, val, backendAWS, backendMinio)
	case "Checksum algorithm":
		return oneOf(label, strings.ToUpper(val), checksumAlgorithms...)
	case "Request checksum calculation", "Response checksum validation":
		return oneOf(label, strings.ToLower(val), whenSupported, whenRequired)
	case "Server side encryption":
		return oneOf(label, val, sseNone, sseAES256, sseKMS)
	case "Checksum encoding":
		return oneOf(label, val, encodingBase64, encodingHex)
	case "Log format":
		return oneOf(label, val, "console", "json")
	default:
		return fmt.Errorf("%w: unknown option %s", errInvalidOption, label)
	}
	return
}

func oneOf(label, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}

	return fmt.Errorf("%w: %s must be one of %s, got %q", errInvalidOption, label, strings.Join(allowed, ", "), val)
}

// newObjectStore builds the client for the configured backend.
func newObjectStore(opts *options) (objectStore, error) {
	switch opts.Backend {
	case backendMinio:
		return newMinioStore(opts)
	default:
		return newAWSStore(opts)
	}
}
