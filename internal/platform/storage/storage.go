// Package storage keeps failure artifacts (screenshots, page HTML) either in a
// Supabase bucket or under the local data directory.
package storage

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"orderbridge/internal/logger"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"
)

// signedURLTTL is how long a signed artifact link stays valid, in seconds.
const signedURLTTL = 7 * 24 * 3600

type Options struct {
	AppEnv             string
	DataDir            string
	SupabaseURL        string
	SupabaseServiceKey string
	Bucket             string
}

func (o Options) remote() bool {
	return o.SupabaseURL != "" && o.SupabaseServiceKey != "" && o.Bucket != ""
}

// Store saves artifacts. It is safe for concurrent use.
type Store struct {
	opts   Options
	client *supabase.Client
	log    *logger.Logger
	now    func() time.Time
}

func New(opts Options, log *logger.Logger) (*Store, error) {
	s := &Store{opts: opts, log: log.Named("Artifacts"), now: time.Now}

	if opts.AppEnv == "production" && !opts.remote() {
		return nil, fmt.Errorf("production environment requires Supabase configuration: NEXT_PUBLIC_SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_STORAGE_BUCKET must be set")
	}
	if opts.remote() {
		client, err := supabase.NewClient(opts.SupabaseURL, opts.SupabaseServiceKey, nil)
		if err != nil {
			if opts.AppEnv == "production" {
				return nil, fmt.Errorf("initialize supabase client: %w", err)
			}
			s.log.LogWarnf("supabase client unavailable, artifacts stay local: %v", err)
		} else {
			s.client = client
		}
	}
	return s, nil
}

// Save stores data as run/name and returns where it can be found: a signed
// URL for bucket uploads, a file path otherwise.
func (s *Store) Save(run, name string, data []byte) (string, error) {
	object := path.Join("failures", s.now().Format("20060102"), sanitize(run)+"_"+sanitize(name))

	if s.client != nil {
		loc, err := s.upload(object, data)
		if err == nil {
			return loc, nil
		}
		if s.opts.AppEnv == "production" {
			return "", err
		}
		s.log.LogWarnf("artifact upload failed, saving locally: %v", err)
	}
	return s.saveLocal(object, data)
}

func (s *Store) upload(object string, data []byte) (string, error) {
	contentType := mime.TypeByExtension(path.Ext(object))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.Storage.UploadFile(s.opts.Bucket, object, bytes.NewReader(data), storage_go.FileOptions{ContentType: &contentType}); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	signed, err := s.client.Storage.CreateSignedUrl(s.opts.Bucket, object, signedURLTTL)
	if err != nil || signed.SignedURL == "" {
		// The object exists; its bucket path is still useful to an operator.
		s.log.LogWarnf("sign %s failed: %v", object, err)
		return s.opts.Bucket + "/" + object, nil
	}
	return signed.SignedURL, nil
}

func (s *Store) saveLocal(object string, data []byte) (string, error) {
	p := filepath.Join(s.opts.DataDir, filepath.FromSlash(object))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return p, nil
}

func sanitize(s string) string {
	replacer := strings.NewReplacer(":", "-", "/", "-", "\\", "-", "?", "-", "&", "-", "=", "-", "#", "-", "%", "", " ", "_")
	out := replacer.Replace(s)
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
