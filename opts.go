package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/magiconair/properties"
)

// Backends
const (
	backendAWS   = "aws"
	backendMinio = "minio"
)

// Checksum calculation/validation modes
const (
	whenSupported = "when_supported"
	whenRequired  = "when_required"
)

// Server side encryption modes
const (
	sseNone   = "NONE"
	sseAES256 = "AES256"
	sseKMS    = "aws:kms"
)

// Checksum header encodings
const (
	encodingBase64 = "base64"
	encodingHex    = "hex"
)

// Config file formats
const (
	formatJSON       = "json"
	formatTOML       = "toml"
	formatProperties = "properties"
)

var checksumAlgorithms = []string{"CRC32", "CRC32C", "SHA1", "SHA256", "CRC64NVME"}

type options struct {
	BucketName                 string `json:",omitempty" toml:"bucket,omitempty"`
	Region                     string `json:",omitempty" toml:"region,omitempty"`
	Endpoint                   string `json:",omitempty" toml:"endpoint,omitempty"`
	PathStyle                  bool   `json:",omitempty" toml:"path_style,omitempty"`
	Profile                    string `json:",omitempty" toml:"profile,omitempty"`
	Backend                    string `json:",omitempty" toml:"backend,omitempty"`
	ChecksumAlgorithm          string `json:",omitempty" toml:"checksum_algorithm,omitempty"`
	RequestChecksumCalculation string `json:",omitempty" toml:"request_checksum_calculation,omitempty"`
	ResponseChecksumValidation string `json:",omitempty" toml:"response_checksum_validation,omitempty"`
	ChunkedEncoding            bool   `json:",omitempty" toml:"chunked_encoding,omitempty"`
	ServerSideEncryption       string `json:",omitempty" toml:"server_side_encryption,omitempty"`
	WithSHAHeader              bool   `json:",omitempty" toml:"with_sha_header,omitempty"`
	ChecksumEncoding           string `json:",omitempty" toml:"checksum_encoding,omitempty"`
	DummyChecksum              bool   `json:",omitempty" toml:"dummy_checksum,omitempty"`
	InsecureTLS                bool   `json:",omitempty" toml:"insecure_tls,omitempty"`
	CreateBucket               bool   `toml:"create_bucket"`
	Verify                     bool   `toml:"verify"`
	File                       string `json:",omitempty" toml:"file,omitempty"`
	CacheFile                  string `json:",omitempty" toml:"cache_file,omitempty"`
	MaxRetries                 int    `toml:"max_retries"`
	LogFormat                  string `json:",omitempty" toml:"log_format,omitempty"`

	verbose, quiet, strict, saveCfg bool
	cfgFile                         string
}

// defaultOptions returns the options every run starts from. The AWS region and
// profile are seeded from the usual AWS environment variables.
func defaultOptions(getenv func(string) string) *options {
	return &options{
		Region:                     firstNonEmpty(getenv("AWS_REGION"), getenv("AWS_DEFAULT_REGION")),
		Profile:                    firstNonEmpty(getenv("AWS_PROFILE"), getenv("AWS_DEFAULT_PROFILE")),
		Backend:                    backendAWS,
		ChecksumAlgorithm:          "CRC32",
		RequestChecksumCalculation: whenSupported,
		ResponseChecksumValidation: whenSupported,
		ServerSideEncryption:       sseNone,
		ChecksumEncoding:           encodingBase64,
		CreateBucket:               true,
		Verify:                     true,
		MaxRetries:                 -1,
		LogFormat:                  "console",
		cfgFile:                    ".go3verify.json",
	}
}

// configFormat picks the config file format from the file extension, JSON being the default.
func configFormat(fname string) string {
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".toml":
		return formatTOML
	case ".properties":
		return formatProperties
	default:
		return formatJSON
	}
}

func (o *options) dump(fname string) (err error) {
	var buf []byte
	switch configFormat(fname) {
	case formatTOML:
		b := &bytes.Buffer{}
		if err = toml.NewEncoder(b).Encode(o); err != nil {
			return
		}
		buf = b.Bytes()
	case formatProperties:
		var p *properties.Properties
		if p, err = o.properties(); err != nil {
			return
		}
		b := &bytes.Buffer{}
		if _, err = p.Write(b, properties.UTF8); err != nil {
			return
		}
		buf = b.Bytes()
	default:
		if buf, err = json.MarshalIndent(o, "", "  "); err != nil {
			return
		}
		buf = append(buf, '\n')
	}

	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer func() {
		err2 := f.Close()
		if err == nil {
			err = err2
		} else if err2 != nil {
			err = fmt.Errorf("%v; %v", err, err2)
		}
	}()

	_, err = f.Write(buf)

	return
}

// restore loads fname on top of the current options. Keys absent from the file
// leave the current values alone; a missing file is not an error.
func (o *options) restore(fname string) (err error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	switch configFormat(fname) {
	case formatTOML:
		if _, err = toml.Decode(string(data), o); err != nil {
			return fmt.Errorf("parsing %s: %w", fname, err)
		}
	case formatProperties:
		p, err := properties.Load(data, properties.UTF8)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", fname, err)
		}
		if err = o.apply(p.Get); err != nil {
			return fmt.Errorf("parsing %s: %w", fname, err)
		}
	default:
		if err = json.Unmarshal(data, o); err != nil {
			return fmt.Errorf("parsing %s: %w", fname, err)
		}
	}

	return nil
}

// applyEnv overlays the options with the APP_S3_* environment variables.
func (o *options) applyEnv(getenv func(string) string) error {
	return o.apply(func(key string) (string, bool) {
		val := getenv(envName(key))
		return val, val != ""
	})
}

func (o *options) apply(lookup func(key string) (string, bool)) error {
	for _, s := range settings {
		if val, ok := lookup(s.key); ok {
			if err := s.set(o, strings.TrimSpace(val)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (o *options) properties() (*properties.Properties, error) {
	p := properties.NewProperties()
	for _, s := range settings {
		if _, _, err := p.Set(s.key, s.get(o)); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// envName maps a properties key to its environment variable (app.s3.bucket -> APP_S3_BUCKET).
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setting binds one properties key (and thus one env var) to an options field.
type setting struct {
	key string
	get func(*options) string
	set func(*options, string) error
}

func stringSetting(key string, field func(*options) *string) setting {
	return setting{
		key: key,
		get: func(o *options) string { return *field(o) },
		set: func(o *options, val string) error {
			*field(o) = val
			return nil
		},
	}
}

func boolSetting(key string, field func(*options) *bool) setting {
	return setting{
		key: key,
		get: func(o *options) string { return strconv.FormatBool(*field(o)) },
		set: func(o *options, val string) error {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errInvalidOption, key, err)
			}
			*field(o) = b
			return nil
		},
	}
}

func intSetting(key string, field func(*options) *int) setting {
	return setting{
		key: key,
		get: func(o *options) string { return strconv.Itoa(*field(o)) },
		set: func(o *options, val string) error {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errInvalidOption, key, err)
			}
			*field(o) = n
			return nil
		},
	}
}

var settings = []setting{
	stringSetting("app.s3.bucket", func(o *options) *string { return &o.BucketName }),
	stringSetting("app.s3.region", func(o *options) *string { return &o.Region }),
	stringSetting("app.s3.endpoint", func(o *options) *string { return &o.Endpoint }),
	boolSetting("app.s3.forcePathStyle", func(o *options) *bool { return &o.PathStyle }),
	stringSetting("app.s3.profile", func(o *options) *string { return &o.Profile }),
	stringSetting("app.s3.backend", func(o *options) *string { return &o.Backend }),
	stringSetting("app.s3.checksumAlgorithm", func(o *options) *string { return &o.ChecksumAlgorithm }),
	stringSetting("app.s3.requestChecksumCalculation", func(o *options) *string { return &o.RequestChecksumCalculation }),
	stringSetting("app.s3.responseChecksumValidation", func(o *options) *string { return &o.ResponseChecksumValidation }),
	boolSetting("app.s3.chunkedEncodingEnabled", func(o *options) *bool { return &o.ChunkedEncoding }),
	stringSetting("app.s3.serverSideEncryption", func(o *options) *string { return &o.ServerSideEncryption }),
	boolSetting("app.s3.withSHAHeader", func(o *options) *bool { return &o.WithSHAHeader }),
	stringSetting("app.s3.checksumEncoding", func(o *options) *string { return &o.ChecksumEncoding }),
	boolSetting("app.s3.dummychecksum", func(o *options) *bool { return &o.DummyChecksum }),
	boolSetting("app.s3.insecure", func(o *options) *bool { return &o.InsecureTLS }),
	boolSetting("app.s3.createBucket", func(o *options) *bool { return &o.CreateBucket }),
	boolSetting("app.s3.verify", func(o *options) *bool { return &o.Verify }),
	stringSetting("app.s3.file_to_upload", func(o *options) *string { return &o.File }),
	stringSetting("app.s3.cacheFile", func(o *options) *string { return &o.CacheFile }),
	intSetting("app.s3.maxRetries", func(o *options) *int { return &o.MaxRetries }),
	stringSetting("app.s3.logFormat", func(o *options) *string { return &o.LogFormat }),
}
