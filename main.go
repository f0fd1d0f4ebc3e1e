package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	Success = iota
	SetupFailed
	CmdLineOptionError
	UploadFailed
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Getenv, os.Stderr))
}

// run does the whole job and returns the exit code. Upload problems only change
// the exit code when -strict is set.
func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	opts, err := setupOptions(args, getenv)
	if errors.Is(err, flag.ErrHelp) {
		usage(stderr)
		return Success
	} else if errors.Is(err, errInvalidOption) {
		fmt.Fprintf(stderr, "%v\n\n", err)
		usage(stderr)
		return CmdLineOptionError
	} else if err != nil {
		fmt.Fprintln(stderr, "Setup failed:", err)
		return SetupFailed
	}

	if err = validateCmdLineFlags(opts); err != nil {
		fmt.Fprintf(stderr, "Required field missing or invalid: %v.\n\n", err)
		usage(stderr)
		return CmdLineOptionError
	}

	if opts.saveCfg {
		if err = opts.dump(opts.cfgFile); err != nil {
			fmt.Fprintln(stderr, "Saving config failed:", err)
			return SetupFailed
		}
	}

	logger, err := newLogger(stderr, opts.LogFormat, opts.logLevel())
	if err != nil {
		fmt.Fprintln(stderr, "Setup failed:", err)
		return SetupFailed
	}

	src, err := newSourceFile(opts.File)
	if err != nil {
		logger.Error("File not found or not a file", "path", opts.File, "error", err)
		if opts.strict {
			return UploadFailed
		}
		return Success
	}

	store, err := newStore(opts)
	if err != nil {
		logger.Error("Unable to initialize the S3 client", "backend", opts.Backend, "error", err)
		return SetupFailed
	}

	seq := &sequence{store: store, opts: opts, log: logger}
	if opts.CacheFile != "" {
		seq.cache = loadUploadCache(opts.CacheFile)
	}

	logger.Info("Uploading", "path", src.fpath, "bucket", opts.BucketName, "key", src.key)
	r := seq.run(ctx, src)
	if err = r.err(); err != nil {
		logger.Warn("Completed with errors", "failures", len(r.errs.Errors), "error", err)
		if opts.strict {
			return UploadFailed
		}
		return Success
	}

	logger.Info("All done!", "key", r.key, "uploaded", r.uploaded, "skipped", r.skipped, "objects", len(r.objects))

	return Success
}
