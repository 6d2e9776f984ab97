// Package objectstore is a hand-rolled AWS SigV4 client for S3-compatible
// object storage: plain net/http plus the canonical-request signing
// algorithm, no AWS SDK dependency.
package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Reference is the outcome of a successful upload: the final key (after
// prefix application) and its public URL, if a public endpoint is
// configured.
type Reference struct {
	Key string
	URL string
}

// Client talks to one bucket on one S3-compatible endpoint.
type Client struct {
	cfg        Config
	endpoint   *url.URL
	httpClient *http.Client
}

// New constructs a Client. It returns an error only for a malformed
// endpoint; an empty/disabled Config is a caller error the pipeline steps
// are expected to check via Config.Enabled before ever constructing one.
func New(cfg Config) (*Client, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse object store endpoint: %w", err)
		}
		endpoint = parsed.Host
	}
	base := &url.URL{Scheme: scheme, Host: endpoint}
	if base.Host == "" {
		return nil, fmt.Errorf("objectstore: empty endpoint host")
	}
	return &Client{
		cfg:        cfg,
		endpoint:   base,
		httpClient: &http.Client{Timeout: cfg.requestTimeout()},
	}, nil
}

// Enabled reports whether c is non-nil and was built from an enabled Config.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled()
}

func (c *Client) Upload(ctx context.Context, key, contentType string, body []byte) (Reference, error) {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(body))
	if err != nil {
		return Reference{}, fmt.Errorf("create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.signRequest(req, hashSHA256Hex(body)); err != nil {
		return Reference{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reference{}, fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reference{}, fmt.Errorf("upload object %s: unexpected status %d", finalKey, resp.StatusCode)
	}
	return Reference{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

// Download fetches an object's full body. Used by prefetch-flac to
// recover segments that exist in the object store but were purged (or
// never landed) locally.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	if err := c.signRequest(req, emptyPayloadHash); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download object %s: %w", finalKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download object %s: unexpected status %d", finalKey, resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read downloaded object %s: %w", finalKey, err)
	}
	return buf.Bytes(), nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	if err := c.signRequest(req, emptyPayloadHash); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", finalKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete object %s: unexpected status %d", finalKey, resp.StatusCode)
}

// listObjectsResult is the subset of an S3 ListObjectsV2 response this
// client cares about.
type listObjectsResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

// listPrefix returns every key under prefix, paging through
// ListObjectsV2's continuation token.
func (c *Client) listPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	token := ""
	for {
		target := c.objectURL("")
		q := url.Values{}
		q.Set("list-type", "2")
		q.Set("prefix", c.applyPrefix(prefix))
		q.Set("max-keys", "1000")
		if token != "" {
			q.Set("continuation-token", token)
		}
		target.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return keys, fmt.Errorf("create list request: %w", err)
		}
		if err := c.signRequest(req, emptyPayloadHash); err != nil {
			return keys, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return keys, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		var result listObjectsResult
		decErr := xml.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return keys, fmt.Errorf("list objects under %s: unexpected status %d", prefix, resp.StatusCode)
		}
		if decErr != nil {
			return keys, fmt.Errorf("decode list response for %s: %w", prefix, decErr)
		}
		for _, obj := range result.Contents {
			keys = append(keys, obj.Key)
		}
		if !result.IsTruncated || result.NextContinuationToken == "" {
			break
		}
		token = result.NextContinuationToken
	}
	return keys, nil
}

// BulkDeleteResult reports the outcome of deleting every key under one or
// more prefixes: how many keys were removed, and the first error seen per
// prefix. Errors in one prefix never abort the others.
type BulkDeleteResult struct {
	DeletedKeys int
	Errors      map[string]error
}

// DeletePrefixes lists then deletes every object under each prefix,
// following the list continuation token, then walks the listed keys in
// chunks of 1000 and issues one DELETE request per key. Used by session delete to remove the
// segments/hls/peaks prefixes for a session.
func (c *Client) DeletePrefixes(ctx context.Context, prefixes []string) BulkDeleteResult {
	result := BulkDeleteResult{Errors: make(map[string]error)}
	for _, prefix := range prefixes {
		keys, err := c.listPrefix(ctx, prefix)
		if err != nil {
			result.Errors[prefix] = err
			continue
		}
		const batchSize = 1000
		for i := 0; i < len(keys); i += batchSize {
			end := i + batchSize
			if end > len(keys) {
				end = len(keys)
			}
			for _, key := range keys[i:end] {
				if err := c.Delete(ctx, key); err != nil {
					if result.Errors[prefix] == nil {
						result.Errors[prefix] = err
					}
					continue
				}
				result.DeletedKeys++
			}
		}
	}
	return result
}

func (c *Client) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (c *Client) objectURL(finalKey string) *url.URL {
	path := "/" + strings.TrimLeft(c.cfg.Bucket, "/")
	trimmedKey := strings.TrimLeft(finalKey, "/")
	if trimmedKey != "" {
		path += "/" + trimmedKey
	}
	u := *c.endpoint
	u.Path = path
	return &u
}

func (c *Client) publicURL(key string) string {
	base := strings.TrimSpace(c.cfg.PublicEndpoint)
	if base == "" {
		return ""
	}
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedKey == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + trimmedKey
}

func (c *Client) signRequest(req *http.Request, payloadHash string) error {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	accessKey := strings.TrimSpace(c.cfg.AccessKey)
	secretKey := strings.TrimSpace(c.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return nil
	}
	region := strings.TrimSpace(c.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	hash := sha256.Sum256([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, "s3", "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(hash[:]),
	}, "\n")
	signingKey := deriveSigningKey(secretKey, dateStamp, region)
	signature := hmacSHA256Hex(signingKey, stringToSign)
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
	return nil
}

func canonicalizeHeaders(req *http.Request) (string, string) {
	headerMap := make(map[string][]string)
	for key, values := range req.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			cleaned = append(cleaned, strings.TrimSpace(v))
		}
		headerMap[lower] = cleaned
	}
	if _, ok := headerMap["host"]; !ok && req.Host != "" {
		headerMap["host"] = []string{req.Host}
	}
	keys := make([]string, 0, len(headerMap))
	for key := range headerMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	var signed []string
	for _, key := range keys {
		values := headerMap[key]
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(strings.Join(values, ","))
		b.WriteByte('\n')
		signed = append(signed, key)
	}
	return b.String(), strings.Join(signed, ";")
}

func canonicalURI(u *url.URL) string {
	if u == nil {
		return "/"
	}
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func canonicalQuery(u *url.URL) string {
	if u == nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var parts []string
	for _, key := range keys {
		vals := values[key]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func deriveSigningKey(secret, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hmacSHA256Hex(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

var emptyPayloadHash = hashSHA256Hex(nil)

func hashSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
