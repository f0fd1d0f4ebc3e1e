/*
Go3Verify (Go S3 Upload & Verify) is a small tool that uploads one file to an S3 compatible
bucket and checks that what landed there is what was sent.

It was created to debug checksum handling of S3 compatible object stores: which checksum
headers an endpoint accepts, which algorithms it records and whether the bytes that come back
hash to the same values as the local file.

A run goes through these steps, each one logging its own failure and moving on:

  - create the bucket (an existing bucket is fine);
  - compute the MD5 and SHA-256 of the local file;
  - upload it under its base name, optionally with the SHA-256 as checksum header;
  - list the bucket, download every object and hash it again.

Options come from a config file (JSON, TOML or Java style .properties), the environment
(APP_S3_BUCKET, APP_S3_FILE_TO_UPLOAD, ...) and the command line, in increasing order of
precedence. Two backends are available: the AWS SDK (default) and the MinIO client.

The exit code is 0 no matter how the upload went, unless -strict is given.
*/
package main
