package main

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// s3Server is an in-memory S3 endpoint for a single bucket, path style only. It speaks just
// enough of the REST API for both clients and, like S3, refuses uploads whose checksum is
// announced but missing or wrong.
type s3Server struct {
	*httptest.Server

	mu      sync.Mutex
	objects map[string]*s3Object
	puts    []http.Header
	gets    []http.Header
}

type s3Object struct {
	data       []byte
	algorithms []string
	modified   time.Time
}

// checksum header suffixes as canonicalized by net/http
var s3ChecksumHeaders = map[string]string{
	"X-Amz-Checksum-Crc32":     "CRC32",
	"X-Amz-Checksum-Crc32c":    "CRC32C",
	"X-Amz-Checksum-Sha1":      "SHA1",
	"X-Amz-Checksum-Sha256":    "SHA256",
	"X-Amz-Checksum-Crc64nvme": "CRC64NVME",
}

func newS3Server(t *testing.T) *s3Server {
	t.Helper()
	s := &s3Server{objects: map[string]*s3Object{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

func (s *s3Server) lastPut() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.puts) == 0 {
		return http.Header{}
	}

	return s.puts[len(s.puts)-1]
}

func (s *s3Server) lastGet() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.gets) == 0 {
		return http.Header{}
	}

	return s.gets[len(s.gets)-1]
}

func (s *s3Server) object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[key]; ok {
		return o.data
	}

	return nil
}

func (s *s3Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPut && key == "":
		_, _ = io.Copy(io.Discard, r.Body)
	case r.Method == http.MethodPut:
		s.putObject(w, r, key)
	case r.Method == http.MethodGet && key == "":
		s.listObjects(w, bucket)
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		s.getObject(w, r, bucket, key)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func (s *s3Server) putObject(w http.ResponseWriter, r *http.Request, key string) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}

	hdr := r.Header.Clone()
	data := raw
	if strings.HasPrefix(hdr.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		var trailer http.Header
		if data, trailer, err = decodeAWSChunked(raw); err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody", err.Error())
			return
		}
		for k, v := range trailer {
			hdr[k] = v
		}
	}
	for k, v := range r.Trailer {
		hdr[k] = v
	}
	s.puts = append(s.puts, hdr)

	var algorithms []string
	for name, algorithm := range s3ChecksumHeaders {
		val := hdr.Get(name)
		if val == "" {
			continue
		}
		h, _ := newChecksumHash(algorithm)
		_, _ = h.Write(data)
		expected, _ := checksumHeader(hex.EncodeToString(h.Sum(nil)), encodingBase64)
		if val != expected {
			writeS3Error(w, http.StatusBadRequest, "BadDigest", "The "+algorithm+" you specified did not match the calculated checksum.")
			return
		}
		algorithms = append(algorithms, algorithm)
	}
	if announced := hdr.Get("X-Amz-Sdk-Checksum-Algorithm"); announced != "" && len(algorithms) == 0 {
		writeS3Error(w, http.StatusBadRequest, "InvalidRequest", "x-amz-sdk-checksum-algorithm specified, but no corresponding x-amz-checksum-* or x-amz-trailer headers were found.")
		return
	}
	if len(algorithms) > 1 {
		writeS3Error(w, http.StatusBadRequest, "InvalidRequest", "Expecting a single x-amz-checksum- header.")
		return
	}

	s.objects[key] = &s3Object{data: data, algorithms: algorithms, modified: time.Now().UTC()}
	w.Header().Set("ETag", `"`+md5Hex(data)+`"`)
}

func (s *s3Server) listObjects(w http.ResponseWriter, bucket string) {
	type content struct {
		Key               string
		LastModified      string
		ETag              string
		Size              int64
		StorageClass      string
		ChecksumAlgorithm []string `xml:",omitempty"`
	}
	result := struct {
		XMLName     xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
		Name        string
		Prefix      string
		KeyCount    int
		MaxKeys     int
		IsTruncated bool
		Contents    []content
	}{Name: bucket, KeyCount: len(s.objects), MaxKeys: 1000}

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o := s.objects[k]
		result.Contents = append(result.Contents, content{
			Key:               k,
			LastModified:      o.modified.Format("2006-01-02T15:04:05.000Z"),
			ETag:              `"` + md5Hex(o.data) + `"`,
			Size:              int64(len(o.data)),
			StorageClass:      "STANDARD",
			ChecksumAlgorithm: o.algorithms,
		})
	}

	writeXML(w, http.StatusOK, result)
}

func (s *s3Server) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	s.gets = append(s.gets, r.Header.Clone())

	o, ok := s.objects[key]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(o.data)))
	w.Header().Set("ETag", `"`+md5Hex(o.data)+`"`)
	w.Header().Set("Last-Modified", o.modified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(o.data)
	}
}

// decodeAWSChunked strips the aws-chunked framing (signed or not) and returns the payload
// and any trailing checksum headers.
func decodeAWSChunked(raw []byte) ([]byte, http.Header, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	data, trailer := &bytes.Buffer{}, http.Header{}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, nil, err
		}
		if size == 0 {
			break
		}
		if _, err = io.CopyN(data, br, size); err != nil {
			return nil, nil, err
		}
		if _, err = br.ReadString('\n'); err != nil {
			return nil, nil, err
		}
	}

	for {
		line, err := br.ReadString('\n')
		line = strings.TrimSpace(line)
		if name, val, ok := strings.Cut(line, ":"); ok {
			trailer.Set(name, strings.TrimSpace(val))
		}
		if err != nil || line == "" {
			break
		}
	}

	return data.Bytes(), trailer, nil
}

func writeS3Error(w http.ResponseWriter, status int, code, msg string) {
	writeXML(w, status, struct {
		XMLName   xml.Name `xml:"Error"`
		Code      string
		Message   string
		RequestID string `xml:"RequestId"`
	}{Code: code, Message: msg, RequestID: "go3verify-test"})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	buf, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(xml.Header)+len(buf)))
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_, _ = w.Write(buf)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
